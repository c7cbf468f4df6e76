package roomclient

import (
	"context"
	"time"

	"paintroom-be/internal/dto"
	"paintroom-be/pkg/canvas"
	"paintroom-be/pkg/roster"
)

const thumbnailTimeout = time.Minute

// onThumbnailTick starts a refresh when this client leads the roster and the
// canvas changed since the last upload.
func (s *Session) onThumbnailTick(st *state) {
	if st.link == nil || st.thumbBusy || !st.room.IsActive {
		return
	}
	leader, ok := roster.ElectLeader(st.members)
	if !ok || leader != s.me.ID {
		return
	}
	count := len(st.strokes)
	if count == st.thumbCount {
		return
	}

	st.thumbBusy = true
	s.wg.Add(1)
	go s.refreshThumbnail(count)
}

func (s *Session) refreshThumbnail(count int) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, thumbnailTimeout)
	defer cancel()

	room, err := s.uploadThumbnail(ctx)

	s.post(func(st *state) {
		st.thumbBusy = false
		if err != nil {
			return
		}
		st.thumbCount = count
		s.applyRoom(st, *room)
		s.publish(st)
	})

	switch {
	case err == nil:
		s.logger.Debug(module, "Thumbnail refreshed", map[string]interface{}{"room_id": s.roomID, "strokes": count})
	case IsBenign(err):
		s.logger.Debug(module, "Thumbnail skipped", map[string]interface{}{"room_id": s.roomID, "error": err.Error()})
	default:
		s.report(err)
	}
}

func (s *Session) uploadThumbnail(ctx context.Context) (*dto.RoomResponse, error) {
	strokes, err := s.settledStrokes(ctx)
	if err != nil {
		return nil, err
	}

	// render straight at thumbnail resolution instead of scaling a full frame
	scale := float64(canvas.ThumbnailMaxSide) / canvas.Width
	jpg, err := canvas.EncodeThumbnail(canvas.Render(strokes, canvas.RenderOptions{Scale: scale}))
	if err != nil {
		return nil, err
	}

	cred, err := s.client.ThumbnailCredential(ctx, s.roomID, &dto.ThumbnailCredentialRequest{
		UserId: s.me.ID,
		Size:   int64(len(jpg)),
	})
	if err != nil {
		return nil, err
	}
	if err := s.client.Upload(ctx, cred.Upload, canvas.ThumbnailContentType, jpg); err != nil {
		return nil, err
	}
	return s.client.UpdateThumbnail(ctx, s.roomID, &dto.UpdateThumbnailRequest{UserId: s.me.ID})
}
