package roomclient

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"paintroom-be/internal/dto"

	"github.com/gorilla/websocket"
)

// fakeRoomServer speaks the REST and socket protocol of one room well enough
// for the session to run against it.
type fakeRoomServer struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	room        dto.RoomResponse
	strokes     []dto.StrokeResponse
	seq         int64
	members     []dto.PresenceMember
	conns       []*websocket.Conn
	uploads     map[string][]byte
	failUpload  bool
	credKinds   []string
	finishes    []dto.FinishSessionRequest
	thumbnails  int
	startStatus int

	received chan dto.Envelope
}

const finishToken = "finish-secret"

func newFakeRoomServer(t *testing.T, active bool) *fakeRoomServer {
	t.Helper()

	f := &fakeRoomServer{
		t:        t,
		room:     dto.RoomResponse{Id: 7, Name: "Room 7"},
		uploads:  make(map[string][]byte),
		received: make(chan dto.Envelope, 64),
	}
	if active {
		now := time.Now().UTC()
		f.room.IsActive = true
		f.room.SessionStartAt = &now
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/rooms/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.ok(w, f.room)
	})
	mux.HandleFunc("GET /api/rooms/{id}/strokes", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.ok(w, f.strokes)
	})
	mux.HandleFunc("POST /api/rooms/{id}/start", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.startStatus != 0 {
			f.fail(w, f.startStatus, "session already running")
			return
		}
		now := time.Now().UTC()
		f.room.IsActive = true
		f.room.SessionStartAt = &now
		f.strokes = nil
		f.broadcastLocked(dto.EventStrokesCleared, nil)
		f.broadcastLocked(dto.EventRoomUpdated, f.room)
		f.ok(w, f.room)
	})
	mux.HandleFunc("POST /api/rooms/{id}/archive/credential", func(w http.ResponseWriter, r *http.Request) {
		var req dto.ArchiveCredentialRequest
		f.decode(r, &req)

		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.room.IsActive {
			f.fail(w, http.StatusConflict, "no session running")
			return
		}
		f.credKinds = append(f.credKinds, req.Kind)
		f.ok(w, dto.ArchiveCredentialResponse{
			Upload:      dto.UploadTarget{Url: f.srv.URL + "/upload/archive.png", Method: http.MethodPut},
			FinishToken: finishToken,
			PublicUrl:   f.srv.URL + "/files/archive.png",
			ObjectPath:  "archive.png",
			ExpiresAt:   time.Now().Add(5 * time.Minute),
		})
	})
	mux.HandleFunc("POST /api/rooms/{id}/finish", func(w http.ResponseWriter, r *http.Request) {
		var req dto.FinishSessionRequest
		f.decode(r, &req)

		f.mu.Lock()
		defer f.mu.Unlock()
		if req.FinishToken != finishToken {
			f.fail(w, http.StatusUnauthorized, "verification failed, try again")
			return
		}
		if !f.room.IsActive {
			f.fail(w, http.StatusConflict, "no session running")
			return
		}
		f.finishes = append(f.finishes, req)
		now := time.Now().UTC()
		url := req.ArtifactUrl
		f.room.IsActive = false
		f.room.SessionStartAt = nil
		f.room.LastSessionImageUrl = &url
		f.room.LastSessionEndedAt = &now
		f.strokes = nil
		f.broadcastLocked(dto.EventRoomUpdated, f.room)
		f.broadcastLocked(dto.EventStrokesCleared, nil)
		f.ok(w, f.room)
	})
	mux.HandleFunc("POST /api/rooms/{id}/thumbnail/credential", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.ok(w, dto.ThumbnailCredentialResponse{
			Upload:     dto.UploadTarget{Url: f.srv.URL + "/upload/thumb.jpg", Method: http.MethodPut},
			PublicUrl:  f.srv.URL + "/files/thumb.jpg",
			ObjectPath: "thumb.jpg",
		})
	})
	mux.HandleFunc("POST /api/rooms/{id}/thumbnail", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.thumbnails++
		now := time.Now().UTC()
		f.room.ThumbnailUpdatedAt = &now
		f.ok(w, f.room)
	})
	mux.HandleFunc("PUT /upload/{name}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failUpload {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.uploads[r.PathValue("name")] = body
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/rooms/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.writeLocked(conn, dto.EventPresenceSync, dto.PresenceSync{Members: f.members})
		f.mu.Unlock()

		go func() {
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var env dto.Envelope
				if json.Unmarshal(raw, &env) == nil && env.Type != dto.InboundHeartbeat {
					f.received <- env
				}
			}
		}()
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		f.dropConnections()
		f.srv.Close()
	})
	return f
}

func (f *fakeRoomServer) client() *Client {
	return New(f.srv.URL + "/api")
}

func (f *fakeRoomServer) addStroke(id, userId string) dto.StrokeResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	s := dto.StrokeResponse{
		Seq:       f.seq,
		Id:        id,
		Points:    []float64{10, 10, 200, 200},
		Color:     "#ff0000",
		Width:     8,
		Tool:      "pen",
		LayerId:   1,
		UserId:    userId,
		UserName:  userId,
		CreatedAt: time.Now().UTC(),
	}
	f.strokes = append(f.strokes, s)
	return s
}

func (f *fakeRoomServer) setMembers(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members = nil
	for i, id := range ids {
		f.members = append(f.members, dto.PresenceMember{
			Id:       id,
			Name:     "user " + id,
			JoinedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
	}
}

func (f *fakeRoomServer) broadcast(eventType string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcastLocked(eventType, data)
}

func (f *fakeRoomServer) broadcastLocked(eventType string, data interface{}) {
	for _, c := range f.conns {
		f.writeLocked(c, eventType, data)
	}
}

func (f *fakeRoomServer) writeLocked(c *websocket.Conn, eventType string, data interface{}) {
	_ = c.WriteMessage(websocket.TextMessage, encode(eventType, data))
}

func (f *fakeRoomServer) dropConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		c.Close()
	}
	f.conns = nil
}

func (f *fakeRoomServer) connCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeRoomServer) finishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.finishes)
}

func (f *fakeRoomServer) thumbnailCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.thumbnails
}

func (f *fakeRoomServer) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.credKinds...)
}

func (f *fakeRoomServer) upload(name string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads[name]
}

func (f *fakeRoomServer) ok(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "message": "ok", "data": data})
}

func (f *fakeRoomServer) fail(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": message})
}

func (f *fakeRoomServer) decode(r *http.Request, v interface{}) {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		f.t.Errorf("decode %s: %v", r.URL.Path, err)
	}
}

// nextReceived waits for the next non heartbeat frame a client sent.
func (f *fakeRoomServer) nextReceived(t *testing.T) dto.Envelope {
	t.Helper()
	select {
	case env := <-f.received:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return dto.Envelope{}
	}
}
