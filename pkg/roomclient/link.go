package roomclient

import (
	"encoding/json"
	"sync"
	"time"

	"paintroom-be/internal/dto"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// link is one socket connection. Only writePump writes to conn.
type link struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newLink(conn *websocket.Conn) *link {
	return &link{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue never blocks the event loop. A full buffer means the socket is
// stuck and the message is dropped.
func (l *link) enqueue(msg []byte) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.send <- msg:
		return true
	default:
		return false
	}
}

// close asks writePump to say goodbye and drop the connection.
func (l *link) close() {
	l.once.Do(func() { close(l.done) })
}

func (s *Session) readPump(l *link) {
	defer func() {
		select {
		case s.lost <- l:
		case <-s.ctx.Done():
		}
		s.wg.Done()
	}()

	l.conn.SetReadLimit(maxMessageSize)
	l.conn.SetReadDeadline(time.Now().Add(pongWait))
	// the server pings; answering extends our own read deadline too
	l.conn.SetPingHandler(func(appData string) error {
		l.conn.SetReadDeadline(time.Now().Add(pongWait))
		err := l.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_, raw, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn(module, "Room socket read failed", map[string]interface{}{"room_id": s.roomID, "error": err.Error()})
			}
			return
		}
		l.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env dto.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.logger.Warn(module, "Malformed frame", map[string]interface{}{"room_id": s.roomID, "error": err.Error()})
			continue
		}

		select {
		case s.inbound <- frame{link: l, env: env}:
		case <-l.done:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) writePump(l *link) {
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer func() {
		heartbeat.Stop()
		l.close()
		l.conn.Close() // unblocks readPump
		s.wg.Done()
	}()

	for {
		select {
		case <-l.done:
			l.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return

		case msg := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-heartbeat.C:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, encode(dto.InboundHeartbeat, nil)); err != nil {
				return
			}
		}
	}
}

func encode(eventType string, data interface{}) []byte {
	env := dto.Envelope{Type: eventType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil
		}
		env.Data = raw
	}
	msg, _ := json.Marshal(env)
	return msg
}
