package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"paintroom-be/internal/dto"
	"paintroom-be/internal/entity"
	"paintroom-be/internal/pkg/logger"
	"paintroom-be/internal/pkg/serverutils"
	"paintroom-be/internal/repository/contract"
	"paintroom-be/pkg/roster"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const (
	clusterChannel = "room_events"

	maxChatRunes    = 500
	chatBurst       = 5
	chatWindow      = 5 * time.Second
	presenceTimeout = 3 * time.Second
)

// StrokeSubmitter appends strokes sent over the socket. The stroke service
// satisfies it.
type StrokeSubmitter interface {
	Submit(ctx context.Context, roomId int64, req *dto.SubmitStrokeRequest) (*dto.StrokeResponse, error)
}

// clusterMessage is what instances exchange over Redis. Origin lets an
// instance skip its own publications, which it already delivered locally.
type clusterMessage struct {
	Origin      string          `json:"origin"`
	RoomId      int64           `json:"room_id"`
	ExcludeUser string          `json:"exclude_user,omitempty"`
	Message     json.RawMessage `json:"message"`
}

type Hub struct {
	// Connections per room
	rooms map[int64]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	// Redis connection for cross-instance fan-out, nil on a single instance
	rdb        *redis.Client
	instanceID string

	presence    contract.PresenceRepository
	presenceMu  sync.Mutex
	presenceQ   map[int64]*presenceQueue
	strokes     StrokeSubmitter
	chatLimiter *cache.Cache

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, instanceID string, presence contract.PresenceRepository, strokes StrokeSubmitter, log logger.ILogger) *Hub {
	return &Hub{
		rooms:       make(map[int64]map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		rdb:         rdb,
		instanceID:  instanceID,
		presence:    presence,
		presenceQ:   make(map[int64]*presenceQueue),
		strokes:     strokes,
		chatLimiter: cache.New(chatWindow, time.Minute),
		logger:      log,
	}
}

// Run owns membership changes until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			peers, ok := h.rooms[client.RoomID]
			if !ok {
				peers = make(map[*Client]struct{})
				h.rooms[client.RoomID] = peers
			}
			peers[client] = struct{}{}
			h.mu.Unlock()

			h.logger.Info("Hub", "Client registered", map[string]interface{}{
				"room_id": client.RoomID,
				"user_id": client.UserID,
				"conn_id": client.ID,
			})
			h.queuePresence(client.RoomID, func() { h.trackPresence(client) })

		case client := <-h.unregister:
			h.mu.Lock()
			peers, ok := h.rooms[client.RoomID]
			if ok {
				if _, member := peers[client]; !member {
					ok = false
				} else {
					delete(peers, client)
					if len(peers) == 0 {
						delete(h.rooms, client.RoomID)
					}
				}
			}
			h.mu.Unlock()

			if !ok {
				continue
			}
			client.close()
			h.chatLimiter.Delete(client.ID)
			h.logger.Info("Hub", "Client unregistered", map[string]interface{}{
				"room_id": client.RoomID,
				"user_id": client.UserID,
				"conn_id": client.ID,
			})
			h.queuePresence(client.RoomID, func() { h.untrackPresence(client) })
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomId, peers := range h.rooms {
		for c := range peers {
			c.close()
		}
		delete(h.rooms, roomId)
	}
}

// Register hands the client to the run loop. It returns false once the hub
// has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ConnectionCount is the number of local connections in a room.
func (h *Hub) ConnectionCount(roomId int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomId])
}

// HandleRoomChange forwards committed changes to the room's connections.
// Inserted strokes skip their author, who already drew them optimistically.
func (h *Hub) HandleRoomChange(change dto.RoomChange) {
	var (
		data    interface{}
		exclude string
	)
	switch change.Type {
	case dto.EventStrokeInserted:
		if change.Stroke == nil {
			return
		}
		data = change.Stroke
		exclude = change.Stroke.UserId
	case dto.EventStrokesCleared:
		data = map[string]int64{"room_id": change.RoomId}
	case dto.EventRoomUpdated:
		if change.Room == nil {
			return
		}
		data = change.Room
	default:
		return
	}

	h.broadcast(change.RoomId, exclude, encode(change.Type, data))
}

// broadcast delivers locally and tells the other instances.
func (h *Hub) broadcast(roomId int64, excludeUser string, msg []byte) {
	h.deliverLocal(roomId, excludeUser, msg)

	if h.rdb == nil {
		return
	}
	payload, err := json.Marshal(clusterMessage{
		Origin:      h.instanceID,
		RoomId:      roomId,
		ExcludeUser: excludeUser,
		Message:     msg,
	})
	if err != nil {
		return
	}
	if err := h.rdb.Publish(context.Background(), clusterChannel, payload).Err(); err != nil {
		h.logger.Warn("Hub", "Redis publish failed", map[string]interface{}{"room_id": roomId, "error": err.Error()})
	}
}

func (h *Hub) deliverLocal(roomId int64, excludeUser string, msg []byte) {
	h.mu.RLock()
	peers := make([]*Client, 0, len(h.rooms[roomId]))
	for c := range h.rooms[roomId] {
		if excludeUser != "" && c.UserID == excludeUser {
			continue
		}
		peers = append(peers, c)
	}
	h.mu.RUnlock()

	for _, c := range peers {
		h.sendTo(c, msg)
	}
}

// sendTo never blocks. A client whose buffer is full is dropped.
func (h *Hub) sendTo(c *Client, msg []byte) {
	if c.enqueue(msg) {
		return
	}
	h.logger.Warn("Hub", "Client send buffer full, dropping connection", map[string]interface{}{
		"room_id": c.RoomID,
		"conn_id": c.ID,
	})
	go h.Unregister(c)
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("Hub", "Redis message parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == h.instanceID {
				continue
			}
			h.deliverLocal(payload.RoomId, payload.ExcludeUser, payload.Message)
		}
	}
}

// presenceQueue holds the pending presence updates of one room.
type presenceQueue struct {
	jobs []func()
}

// queuePresence runs presence store I/O off the run loop. Updates of one room
// run in order on a single goroutine that exits once the queue is empty.
func (h *Hub) queuePresence(roomId int64, job func()) {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	if q, ok := h.presenceQ[roomId]; ok {
		q.jobs = append(q.jobs, job)
		return
	}
	q := &presenceQueue{jobs: []func(){job}}
	h.presenceQ[roomId] = q
	go h.drainPresence(roomId, q)
}

func (h *Hub) drainPresence(roomId int64, q *presenceQueue) {
	for {
		h.presenceMu.Lock()
		if len(q.jobs) == 0 {
			delete(h.presenceQ, roomId)
			h.presenceMu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		h.presenceMu.Unlock()

		job()
	}
}

func (h *Hub) trackPresence(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	err := h.presence.Track(ctx, c.RoomID, entity.Presence{
		ConnId:   c.ID,
		UserId:   c.UserID,
		Name:     c.UserName,
		JoinedAt: c.JoinedAt,
	})
	if err != nil {
		h.logger.Error("Hub", "Presence track failed", map[string]interface{}{"room_id": c.RoomID, "error": err})
	}

	h.broadcast(c.RoomID, "", encode(dto.EventPresenceJoin, c.member()))
	h.syncPresence(ctx, c.RoomID)
}

func (h *Hub) untrackPresence(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	if err := h.presence.Untrack(ctx, c.RoomID, c.ID); err != nil {
		h.logger.Error("Hub", "Presence untrack failed", map[string]interface{}{"room_id": c.RoomID, "error": err})
	}

	h.broadcast(c.RoomID, "", encode(dto.EventPresenceLeave, c.member()))
	h.syncPresence(ctx, c.RoomID)
}

// syncPresence sends the de-duplicated roster of the whole cluster.
func (h *Hub) syncPresence(ctx context.Context, roomId int64) {
	entries, err := h.presence.List(ctx, roomId)
	if err != nil {
		h.logger.Error("Hub", "Presence list failed", map[string]interface{}{"room_id": roomId, "error": err})
		return
	}

	members := make([]roster.Member, 0, len(entries))
	for _, p := range entries {
		members = append(members, roster.Member{Id: p.UserId, Name: p.Name, JoinedAt: p.JoinedAt})
	}

	snapshot := dto.PresenceSync{Members: make([]dto.PresenceMember, 0, len(entries))}
	for _, m := range roster.Dedupe(members) {
		snapshot.Members = append(snapshot.Members, dto.PresenceMember{Id: m.Id, Name: m.Name, JoinedAt: m.JoinedAt})
	}
	h.broadcast(roomId, "", encode(dto.EventPresenceSync, snapshot))
}

// handleInbound processes one frame from a client. Problems go back to that
// client as error frames and never stop the hub.
func (h *Hub) handleInbound(c *Client, raw []byte) {
	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendTo(c, encode(dto.EventError, dto.ErrorFrame{Message: "malformed message"}))
		return
	}

	switch env.Type {
	case dto.InboundChatSend:
		h.handleChat(c, env.Data)
	case dto.InboundHeartbeat:
		h.handleHeartbeat(c)
	case dto.InboundStrokeSubmit:
		h.handleStroke(c, env.Data)
	default:
		h.sendTo(c, encode(dto.EventError, dto.ErrorFrame{Message: "unknown message type " + env.Type}))
	}
}

func (h *Hub) handleChat(c *Client, data json.RawMessage) {
	var req dto.ChatSendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendTo(c, encode(dto.EventError, dto.ErrorFrame{Message: "malformed chat message"}))
		return
	}

	text := strings.TrimSpace(req.Text)
	if n := utf8.RuneCountInString(text); n == 0 || n > maxChatRunes {
		h.sendTo(c, encode(dto.EventError, dto.ErrorFrame{Message: "chat message must be 1 to 500 characters"}))
		return
	}
	if !h.allowChat(c.ID) {
		h.sendTo(c, encode(dto.EventError, dto.ErrorFrame{Message: "too many chat messages"}))
		return
	}

	// Chat is not stored; whoever is connected now gets it.
	h.broadcast(c.RoomID, "", encode(dto.EventChatMessage, dto.ChatMessage{
		UserId:    c.UserID,
		UserName:  c.UserName,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}))
}

// allowChat is a fixed window counter per connection.
func (h *Hub) allowChat(connId string) bool {
	if err := h.chatLimiter.Add(connId, 1, chatWindow); err == nil {
		return true
	}
	n, err := h.chatLimiter.IncrementInt(connId, 1)
	if err != nil {
		// window rolled over between Add and Increment
		h.chatLimiter.Set(connId, 1, chatWindow)
		return true
	}
	return n <= chatBurst
}

func (h *Hub) handleHeartbeat(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	if err := h.presence.Touch(ctx, c.RoomID, c.ID); err != nil {
		// entry timed out while the socket stayed up: announce it again
		h.queuePresence(c.RoomID, func() { h.trackPresence(c) })
	}
}

func (h *Hub) handleStroke(c *Client, data json.RawMessage) {
	var req dto.SubmitStrokeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendTo(c, encode(dto.EventError, dto.ErrorFrame{Message: "malformed stroke"}))
		return
	}
	// the connection decides who authored it
	req.UserId = c.UserID
	req.UserName = c.UserName

	if err := serverutils.ValidateRequest(&req); err != nil {
		h.sendTo(c, encode(dto.EventError, dto.ErrorFrame{Message: err.Error(), Ref: req.Id}))
		return
	}
	if h.strokes == nil {
		h.sendTo(c, encode(dto.EventError, dto.ErrorFrame{Message: "strokes unavailable", Ref: req.Id}))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := h.strokes.Submit(ctx, c.RoomID, &req)
	if err != nil {
		_, message := serverutils.StatusFor(err)
		h.logger.Warn("Hub", "Stroke rejected", map[string]interface{}{"room_id": c.RoomID, "stroke_id": req.Id, "error": err.Error()})
		h.sendTo(c, encode(dto.EventError, dto.ErrorFrame{Message: message, Ref: req.Id}))
		return
	}
	h.sendTo(c, encode(dto.EventStrokeAck, dto.StrokeAck{Id: res.Id, Seq: res.Seq}))
}

func encode(eventType string, data interface{}) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte("null")
	}
	out, _ := json.Marshal(dto.Envelope{Type: eventType, Data: raw})
	return out
}
