package roomclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"paintroom-be/internal/dto"
	"paintroom-be/internal/pkg/apperr"
	"paintroom-be/internal/pkg/logger"
	"paintroom-be/pkg/canvas"
	"paintroom-be/pkg/roster"

	"github.com/cenkalti/backoff/v5"
)

var (
	ErrClosed       = errors.New("session closed")
	ErrDisconnected = errors.New("room socket not connected")
	// ErrRejected wraps error frames the server sent for one of our messages.
	ErrRejected = errors.New("rejected by server")
)

const module = "RoomSession"

type Identity struct {
	ID   string
	Name string
}

type Config struct {
	TimeLimit         time.Duration
	ThumbnailInterval time.Duration
	// FollowerGrace delays the watchdog of everyone but the leader, so one
	// client usually archives an expired session alone.
	FollowerGrace     time.Duration
	HeartbeatInterval time.Duration
	ReconnectWindow   time.Duration
	ChatHistory       int
	Logger            logger.ILogger
}

func (c Config) withDefaults() Config {
	if c.TimeLimit <= 0 {
		c.TimeLimit = 60 * time.Minute
	}
	if c.ThumbnailInterval <= 0 {
		c.ThumbnailInterval = 5 * time.Minute
	}
	if c.FollowerGrace <= 0 {
		c.FollowerGrace = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 20 * time.Second
	}
	if c.ReconnectWindow <= 0 {
		c.ReconnectWindow = 2 * time.Minute
	}
	if c.ChatHistory <= 0 {
		c.ChatHistory = 200
	}
	if c.Logger == nil {
		c.Logger = logger.NewNopLogger()
	}
	return c
}

// Session mirrors one room. A single goroutine applies socket events and
// local actions in order; everything else talks to it through channels.
type Session struct {
	client *Client
	roomID int64
	me     Identity
	cfg    Config
	logger logger.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	inbound chan frame
	lost    chan *link
	actions chan func(*state)

	latest atomic.Pointer[Snapshot]

	obsMu     sync.Mutex
	nextObs   int
	observers map[int]func(Snapshot)
	errorObs  map[int]func(error)
}

type frame struct {
	link *link
	env  dto.Envelope
}

// state is owned by the event loop. Nothing outside loop() touches it.
type state struct {
	link    *link
	room    dto.RoomResponse
	strokes []dto.StrokeResponse
	pending map[string]struct{}
	chat    []dto.ChatMessage
	members []roster.Member

	drawing bool
	waiters []chan []canvas.Stroke

	watchdog      *time.Timer
	watchdogArmed time.Time
	watchdogFired time.Time

	thumbTicker *time.Ticker
	thumbBusy   bool
	thumbCount  int
}

// Connect dials the room, replays its history and starts the event loop.
func Connect(ctx context.Context, c *Client, roomID int64, me Identity, cfg Config) (*Session, error) {
	if me.ID == "" {
		return nil, fmt.Errorf("%w: user id is required", apperr.ErrValidation)
	}
	if me.Name == "" {
		me.Name = me.ID
	}
	cfg = cfg.withDefaults()

	s := &Session{
		client:    c,
		roomID:    roomID,
		me:        me,
		cfg:       cfg,
		logger:    cfg.Logger,
		inbound:   make(chan frame, 64),
		lost:      make(chan *link, 1),
		actions:   make(chan func(*state)),
		observers: make(map[int]func(Snapshot)),
		errorObs:  make(map[int]func(error)),
	}

	opened, err := s.open(ctx)
	if err != nil {
		return nil, err
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	st := &state{pending: make(map[string]struct{})}
	s.install(st, opened)

	s.wg.Add(1)
	go s.loop(st)
	return s, nil
}

func (s *Session) RoomID() int64 { return s.roomID }

func (s *Session) Me() Identity { return s.me }

// Snapshot returns the latest published state.
func (s *Session) Snapshot() Snapshot {
	return *s.latest.Load()
}

// Observe registers fn for every new snapshot. fn runs on the event loop and
// must not block.
func (s *Session) Observe(fn func(Snapshot)) (cancel func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// OnError registers fn for failures of actions and background tasks.
func (s *Session) OnError(fn func(error)) (cancel func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.errorObs[id] = fn
	return func() {
		s.obsMu.Lock()
		delete(s.errorObs, id)
		s.obsMu.Unlock()
	}
}

// Close stops timers, the socket and the event loop. It is safe to call twice.
func (s *Session) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Session) loop(st *state) {
	defer s.wg.Done()
	defer s.teardown(st)

	for {
		select {
		case <-s.ctx.Done():
			return

		case f := <-s.inbound:
			if f.link != st.link {
				continue // left over from a dropped connection
			}
			s.apply(st, f.env)
			s.publish(st)

		case l := <-s.lost:
			if l != st.link {
				continue
			}
			l.close()
			st.link = nil
			s.logger.Warn(module, "Room socket lost, reconnecting", map[string]interface{}{"room_id": s.roomID})
			s.publish(st)
			s.wg.Add(1)
			go s.reconnect()

		case fn := <-s.actions:
			fn(st)

		case <-timerC(st.watchdog):
			st.watchdog = nil
			s.onWatchdog(st)

		case <-tickerC(st.thumbTicker):
			s.onThumbnailTick(st)
		}
	}
}

func (s *Session) teardown(st *state) {
	if st.link != nil {
		st.link.close()
		st.link = nil
	}
	if st.watchdog != nil {
		st.watchdog.Stop()
	}
	if st.thumbTicker != nil {
		st.thumbTicker.Stop()
	}
	for _, w := range st.waiters {
		close(w)
	}
	st.waiters = nil
}

type opened struct {
	link    *link
	room    *dto.RoomResponse
	strokes []dto.StrokeResponse
}

// open dials first and fetches afterwards, so events committed while the
// history is loading wait in the socket instead of getting lost.
func (s *Session) open(ctx context.Context) (*opened, error) {
	conn, err := s.client.Dial(ctx, s.roomID, s.me.ID, s.me.Name)
	if err != nil {
		return nil, fmt.Errorf("dial room %d: %w", s.roomID, err)
	}

	room, err := s.client.GetRoom(ctx, s.roomID)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("load room %d: %w", s.roomID, err)
	}
	strokes, err := s.client.ListStrokes(ctx, s.roomID, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("load strokes of room %d: %w", s.roomID, err)
	}

	return &opened{link: newLink(conn), room: room, strokes: strokes}, nil
}

// install replaces the local state with a fresh replay. Chat history and
// unacknowledged strokes do not survive a reconnect.
func (s *Session) install(st *state, o *opened) {
	st.link = o.link
	st.strokes = append(st.strokes[:0], o.strokes...)
	st.pending = make(map[string]struct{})
	st.chat = nil
	s.applyRoom(st, *o.room)

	s.wg.Add(2)
	go s.readPump(o.link)
	go s.writePump(o.link)

	s.logger.Info(module, "Room replayed", map[string]interface{}{
		"room_id": s.roomID,
		"strokes": len(o.strokes),
		"active":  o.room.IsActive,
	})
	s.publish(st)
}

func (s *Session) reconnect() {
	defer s.wg.Done()

	op := func() (*opened, error) {
		o, err := s.open(s.ctx)
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrValidation) {
			return nil, backoff.Permanent(err)
		}
		return o, err
	}

	o, err := backoff.Retry(s.ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(s.cfg.ReconnectWindow),
	)
	if err != nil {
		if s.ctx.Err() == nil {
			s.report(fmt.Errorf("reconnect room %d: %w", s.roomID, err))
		}
		return
	}

	if !s.post(func(st *state) { s.install(st, o) }) {
		o.link.conn.Close()
	}
}

func (s *Session) apply(st *state, env dto.Envelope) {
	switch env.Type {
	case dto.EventStrokeInserted:
		var stroke dto.StrokeResponse
		if !s.decode(env, &stroke) {
			return
		}
		s.insertStroke(st, stroke)

	case dto.EventStrokeAck:
		var ack dto.StrokeAck
		if !s.decode(env, &ack) {
			return
		}
		if i := st.indexOf(ack.Id); i >= 0 {
			st.strokes[i].Seq = ack.Seq
		}
		delete(st.pending, ack.Id)

	case dto.EventStrokesCleared:
		st.clearCanvas()

	case dto.EventRoomUpdated:
		var room dto.RoomResponse
		if !s.decode(env, &room) {
			return
		}
		s.applyRoom(st, room)

	case dto.EventChatMessage:
		var msg dto.ChatMessage
		if !s.decode(env, &msg) {
			return
		}
		st.chat = append(st.chat, msg)
		if over := len(st.chat) - s.cfg.ChatHistory; over > 0 {
			st.chat = append([]dto.ChatMessage(nil), st.chat[over:]...)
		}

	case dto.EventPresenceSync:
		var ps dto.PresenceSync
		if !s.decode(env, &ps) {
			return
		}
		members := make([]roster.Member, 0, len(ps.Members))
		for _, m := range ps.Members {
			members = append(members, roster.Member{Id: m.Id, Name: m.Name, JoinedAt: m.JoinedAt})
		}
		st.members = roster.Dedupe(members)

	case dto.EventPresenceJoin:
		var m dto.PresenceMember
		if !s.decode(env, &m) {
			return
		}
		st.members = roster.Dedupe(append(st.members, roster.Member{Id: m.Id, Name: m.Name, JoinedAt: m.JoinedAt}))

	case dto.EventPresenceLeave:
		var m dto.PresenceMember
		if !s.decode(env, &m) {
			return
		}
		// another tab of the same user may still be here; the sync that
		// follows every leave puts it back
		kept := st.members[:0]
		for _, cur := range st.members {
			if cur.Id != m.Id {
				kept = append(kept, cur)
			}
		}
		st.members = kept

	case dto.EventError:
		var ef dto.ErrorFrame
		if !s.decode(env, &ef) {
			return
		}
		if _, ok := st.pending[ef.Ref]; ef.Ref != "" && ok {
			st.removeStroke(ef.Ref)
			delete(st.pending, ef.Ref)
			s.report(fmt.Errorf("stroke %s: %w: %s", ef.Ref, ErrRejected, ef.Message))
			return
		}
		s.report(fmt.Errorf("%w: %s", ErrRejected, ef.Message))

	default:
		s.logger.Debug(module, "Ignoring unknown event", map[string]interface{}{"type": env.Type})
	}
}

func (s *Session) decode(env dto.Envelope, v interface{}) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		s.logger.Warn(module, "Malformed event", map[string]interface{}{"type": env.Type, "error": err.Error()})
		return false
	}
	return true
}

// insertStroke adds a committed stroke unless it is already on the canvas.
// Our own optimistic strokes only pick up their sequence number.
func (s *Session) insertStroke(st *state, stroke dto.StrokeResponse) {
	if !st.room.IsActive {
		// late echo of a session that already ended
		s.logger.Debug(module, "Stroke for idle room dropped", map[string]interface{}{"room_id": s.roomID, "stroke_id": stroke.Id})
		return
	}
	if i := st.indexOf(stroke.Id); i >= 0 {
		if _, ok := st.pending[stroke.Id]; ok {
			st.strokes[i] = stroke
			delete(st.pending, stroke.Id)
		}
		return
	}
	st.strokes = append(st.strokes, stroke)
}

// applyRoom handles session transitions. Leaving ACTIVE wipes the canvas and
// the chat; the archived image is what remains of the session.
func (s *Session) applyRoom(st *state, room dto.RoomResponse) {
	wasActive := st.room.IsActive
	st.room = room

	switch {
	case wasActive && !room.IsActive:
		st.clearCanvas()
		st.chat = nil
		st.drawing = false
		st.releaseWaiters()
	case !wasActive && room.IsActive:
		st.thumbCount = 0
	}

	s.syncTimers(st)
}

func (s *Session) syncTimers(st *state) {
	if !st.room.IsActive || st.room.SessionStartAt == nil {
		if st.watchdog != nil {
			st.watchdog.Stop()
			st.watchdog = nil
		}
		st.watchdogArmed = time.Time{}
		if st.thumbTicker != nil {
			st.thumbTicker.Stop()
			st.thumbTicker = nil
		}
		return
	}

	start := *st.room.SessionStartAt
	if !start.Equal(st.watchdogArmed) && !start.Equal(st.watchdogFired) {
		if st.watchdog != nil {
			st.watchdog.Stop()
		}
		st.watchdog = time.NewTimer(time.Until(start.Add(s.cfg.TimeLimit)))
		st.watchdogArmed = start
	}
	if st.thumbTicker == nil {
		st.thumbTicker = time.NewTicker(s.cfg.ThumbnailInterval)
	}
}

func (s *Session) publish(st *state) {
	leader, _ := roster.ElectLeader(st.members)
	snap := Snapshot{
		Room:      copyRoom(st.room),
		Strokes:   copyStrokes(st.strokes),
		Chat:      append([]dto.ChatMessage(nil), st.chat...),
		Roster:    append([]roster.Member(nil), st.members...),
		Leader:    leader,
		Connected: st.link != nil,
		Drawing:   st.drawing,
	}
	s.latest.Store(&snap)

	s.obsMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Session) report(err error) {
	if err == nil {
		return
	}
	s.logger.Warn(module, "Room action failed", map[string]interface{}{"room_id": s.roomID, "error": err.Error()})

	s.obsMu.Lock()
	fns := make([]func(error), 0, len(s.errorObs))
	for _, fn := range s.errorObs {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(err)
	}
}

// post hands fn to the event loop. It reports false once the session closed.
func (s *Session) post(fn func(*state)) bool {
	select {
	case s.actions <- fn:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// do runs fn on the event loop and waits for its result.
func (s *Session) do(ctx context.Context, fn func(*state) error) error {
	res := make(chan error, 1)
	ok := s.post(func(st *state) {
		res <- fn(st)
	})
	if !ok {
		return ErrClosed
	}

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrClosed
	}
}

func (st *state) indexOf(id string) int {
	for i := len(st.strokes) - 1; i >= 0; i-- {
		if st.strokes[i].Id == id {
			return i
		}
	}
	return -1
}

func (st *state) removeStroke(id string) {
	if i := st.indexOf(id); i >= 0 {
		st.strokes = append(st.strokes[:i], st.strokes[i+1:]...)
	}
}

func (st *state) clearCanvas() {
	st.strokes = nil
	st.pending = make(map[string]struct{})
	st.thumbCount = 0
}

func (st *state) releaseWaiters() {
	if len(st.waiters) == 0 {
		return
	}
	strokes := toCanvas(st.strokes)
	for _, w := range st.waiters {
		w <- strokes
	}
	st.waiters = nil
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func tickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
