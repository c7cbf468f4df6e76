package roomclient

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"paintroom-be/internal/dto"
	"paintroom-be/internal/pkg/apperr"
	"paintroom-be/pkg/canvas"
)

const (
	kindUser   = "user"
	kindSystem = "system"

	maxChatRunes = 500
)

// BeginStroke marks a pointer stroke in progress. Raster captures wait until
// it is committed or cancelled.
func (s *Session) BeginStroke(ctx context.Context) error {
	return s.do(ctx, func(st *state) error {
		if !st.room.IsActive {
			return apperr.ErrSessionNotActive
		}
		st.drawing = true
		s.publish(st)
		return nil
	})
}

func (s *Session) CancelStroke(ctx context.Context) error {
	return s.do(ctx, func(st *state) error {
		st.drawing = false
		st.releaseWaiters()
		s.publish(st)
		return nil
	})
}

// DrawStroke commits a finished stroke. It shows up locally at once and is
// sent to the room; the server echoes it to everyone else.
func (s *Session) DrawStroke(ctx context.Context, stroke canvas.Stroke) error {
	if err := stroke.Validate(); err != nil {
		return s.fail(fmt.Errorf("%w: %v", apperr.ErrValidation, err))
	}

	err := s.do(ctx, func(st *state) error {
		st.drawing = false
		defer st.releaseWaiters()

		if !st.room.IsActive {
			return apperr.ErrSessionNotActive
		}
		if st.link == nil {
			return ErrDisconnected
		}
		if st.indexOf(stroke.ID) >= 0 {
			return nil // retry of a stroke we already hold
		}

		msg := encode(dto.InboundStrokeSubmit, dto.SubmitStrokeRequest{
			Id:       stroke.ID,
			Points:   stroke.Points,
			Color:    stroke.Color,
			Width:    stroke.Width,
			Tool:     stroke.Tool,
			LayerId:  stroke.LayerID,
			UserId:   s.me.ID,
			UserName: s.me.Name,
		})
		if !st.link.enqueue(msg) {
			return ErrDisconnected
		}

		st.strokes = append(st.strokes, dto.StrokeResponse{
			Id:        stroke.ID,
			Points:    stroke.Points,
			Color:     stroke.Color,
			Width:     stroke.Width,
			Tool:      stroke.Tool,
			LayerId:   stroke.LayerID,
			UserId:    s.me.ID,
			UserName:  s.me.Name,
			CreatedAt: time.Now().UTC(),
		})
		st.pending[stroke.ID] = struct{}{}
		s.publish(st)
		return nil
	})
	return s.fail(err)
}

func (s *Session) SendChat(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n == 0 || n > maxChatRunes {
		return s.fail(fmt.Errorf("%w: chat message must be 1 to %d characters", apperr.ErrValidation, maxChatRunes))
	}

	err := s.do(ctx, func(st *state) error {
		if st.link == nil || !st.link.enqueue(encode(dto.InboundChatSend, dto.ChatSendRequest{Text: text})) {
			return ErrDisconnected
		}
		return nil
	})
	return s.fail(err)
}

// Start opens a session. humanToken comes from the human check widget.
func (s *Session) Start(ctx context.Context, humanToken string) (*dto.RoomResponse, error) {
	room, err := s.client.StartSession(ctx, s.roomID, humanToken)
	if err != nil {
		return nil, s.fail(fmt.Errorf("start room %d: %w", s.roomID, err))
	}
	s.adoptRoom(*room)
	return room, nil
}

// Finish archives the canvas and closes the session. An upload failure
// surfaces as ErrUpload and leaves the session running.
func (s *Session) Finish(ctx context.Context, humanToken string) (*dto.RoomResponse, error) {
	room, err := s.archive(ctx, kindUser, humanToken)
	if err != nil {
		return nil, s.fail(fmt.Errorf("finish room %d: %w", s.roomID, err))
	}
	return room, nil
}

// CaptureRaster renders the canvas as PNG. It never samples a half drawn
// stroke.
func (s *Session) CaptureRaster(ctx context.Context) ([]byte, error) {
	strokes, err := s.settledStrokes(ctx)
	if err != nil {
		return nil, err
	}
	return canvas.EncodePNG(canvas.Render(strokes, canvas.RenderOptions{Scale: 1}))
}

func (s *Session) settledStrokes(ctx context.Context) ([]canvas.Stroke, error) {
	ch := make(chan []canvas.Stroke, 1)
	err := s.do(ctx, func(st *state) error {
		if st.drawing {
			st.waiters = append(st.waiters, ch)
			return nil
		}
		ch <- toCanvas(st.strokes)
		return nil
	})
	if err != nil {
		return nil, err
	}

	select {
	case strokes, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return strokes, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) archive(ctx context.Context, kind, humanToken string) (*dto.RoomResponse, error) {
	png, err := s.CaptureRaster(ctx)
	if err != nil {
		return nil, err
	}

	cred, err := s.client.ArchiveCredential(ctx, s.roomID, &dto.ArchiveCredentialRequest{
		Token: humanToken,
		Size:  int64(len(png)),
		Kind:  kind,
	})
	if err != nil {
		return nil, err
	}

	if err := s.client.Upload(ctx, cred.Upload, canvas.ArchiveContentType, png); err != nil {
		return nil, err
	}

	room, err := s.client.FinishSession(ctx, s.roomID, &dto.FinishSessionRequest{
		ArtifactUrl: cred.PublicUrl,
		FinishToken: cred.FinishToken,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(module, "Session archived", map[string]interface{}{
		"room_id": s.roomID,
		"kind":    kind,
		"url":     cred.PublicUrl,
		"bytes":   len(png),
	})
	s.adoptRoom(*room)
	return room, nil
}

// adoptRoom applies a room returned by a REST call. The socket delivers the
// same update, applying it twice is harmless.
func (s *Session) adoptRoom(room dto.RoomResponse) {
	s.post(func(st *state) {
		s.applyRoom(st, room)
		s.publish(st)
	})
}

func (s *Session) fail(err error) error {
	if err != nil && err != ErrClosed {
		s.report(err)
	}
	return err
}
