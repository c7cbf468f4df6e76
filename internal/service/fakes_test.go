package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"paintroom-be/internal/dto"
	"paintroom-be/internal/entity"
	"paintroom-be/internal/repository/contract"
	"paintroom-be/internal/repository/specification"
	"paintroom-be/internal/repository/unitofwork"
	"paintroom-be/internal/storage"
	"paintroom-be/pkg/events"
)

// memDB is a tiny in-memory stand-in for the rooms and strokes tables.
// Begin snapshots the whole state and Rollback restores it.
type memDB struct {
	txMu     sync.Mutex // transactions run one at a time
	mu       sync.Mutex
	rooms    map[int64]entity.Room
	strokes  []entity.Stroke
	nextSeq  int64
	failNext error
}

func newMemDB() *memDB {
	return &memDB{rooms: make(map[int64]entity.Room)}
}

func (db *memDB) addRoom(room entity.Room) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rooms[room.Id] = room
}

func (db *memDB) room(id int64) entity.Room {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.rooms[id]
}

func (db *memDB) strokeCount(roomId int64) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, s := range db.strokes {
		if s.RoomId == roomId {
			n++
		}
	}
	return n
}

type memSnapshot struct {
	rooms   map[int64]entity.Room
	strokes []entity.Stroke
	nextSeq int64
}

func (db *memDB) snapshot() *memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	rooms := make(map[int64]entity.Room, len(db.rooms))
	for k, v := range db.rooms {
		rooms[k] = v
	}
	return &memSnapshot{rooms: rooms, strokes: append([]entity.Stroke(nil), db.strokes...), nextSeq: db.nextSeq}
}

func (db *memDB) restore(s *memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rooms = s.rooms
	db.strokes = s.strokes
	db.nextSeq = s.nextSeq
}

func (db *memDB) takeFailure() error {
	err := db.failNext
	db.failNext = nil
	return err
}

func (db *memDB) NewUnitOfWork(context.Context) unitofwork.UnitOfWork {
	return &memUoW{db: db}
}

type memUoW struct {
	db   *memDB
	snap *memSnapshot
}

func (u *memUoW) Begin(context.Context) error {
	if u.snap != nil {
		return errors.New("transaction already started")
	}
	u.db.txMu.Lock()
	u.snap = u.db.snapshot()
	return nil
}

func (u *memUoW) Commit() error {
	if u.snap == nil {
		return errors.New("no transaction to commit")
	}
	u.snap = nil
	u.db.txMu.Unlock()
	return nil
}

func (u *memUoW) Rollback() error {
	if u.snap == nil {
		return errors.New("no transaction to rollback")
	}
	u.db.restore(u.snap)
	u.snap = nil
	u.db.txMu.Unlock()
	return nil
}

func (u *memUoW) RoomRepository() contract.RoomRepository     { return &memRooms{db: u.db} }
func (u *memUoW) StrokeRepository() contract.StrokeRepository { return &memStrokes{db: u.db} }

type memRooms struct{ db *memDB }

func (r *memRooms) match(room entity.Room, specs []specification.Specification) bool {
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.ByID:
			if room.Id != s.ID {
				return false
			}
		case specification.ActiveRooms:
			if !room.IsActive {
				return false
			}
		case specification.StartedBefore:
			if !room.IsActive || room.SessionStartAt == nil || !room.SessionStartAt.Before(s.Cutoff) {
				return false
			}
		}
	}
	return true
}

func (r *memRooms) Create(_ context.Context, room *entity.Room) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if room.Id == 0 {
		room.Id = int64(len(r.db.rooms) + 1)
	}
	r.db.rooms[room.Id] = *room
	return nil
}

func (r *memRooms) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Room, error) {
	all, err := r.FindAll(ctx, specs...)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (r *memRooms) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.Room, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.takeFailure(); err != nil {
		return nil, err
	}
	var out []*entity.Room
	for _, room := range r.db.rooms {
		if r.match(room, specs) {
			room := room
			out = append(out, &room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (r *memRooms) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, err := r.FindAll(ctx, specs...)
	return int64(len(all)), err
}

func (r *memRooms) Activate(_ context.Context, id int64, startAt time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	room, ok := r.db.rooms[id]
	if !ok || room.IsActive {
		return false, nil
	}
	room.IsActive = true
	room.SessionStartAt = &startAt
	room.ThumbnailUpdatedAt = nil
	r.db.rooms[id] = room
	return true, nil
}

func (r *memRooms) Deactivate(_ context.Context, id int64, imageUrl string, endedAt time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	room, ok := r.db.rooms[id]
	if !ok || !room.IsActive {
		return false, nil
	}
	room.IsActive = false
	room.SessionStartAt = nil
	room.LastSessionImageUrl = &imageUrl
	room.LastSessionEndedAt = &endedAt
	r.db.rooms[id] = room
	return true, nil
}

func (r *memRooms) UpdateThumbnail(_ context.Context, id int64, url string, updatedAt time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	room, ok := r.db.rooms[id]
	if !ok || !room.IsActive {
		return false, nil
	}
	room.ThumbnailUrl = &url
	room.ThumbnailUpdatedAt = &updatedAt
	r.db.rooms[id] = room
	return true, nil
}

type memStrokes struct{ db *memDB }

func (r *memStrokes) Create(_ context.Context, stroke *entity.Stroke) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.takeFailure(); err != nil {
		return false, err
	}
	for _, s := range r.db.strokes {
		if s.RoomId == stroke.RoomId && s.Id == stroke.Id {
			*stroke = s
			return false, nil
		}
	}
	r.db.nextSeq++
	stroke.Seq = r.db.nextSeq
	stroke.CreatedAt = time.Now()
	r.db.strokes = append(r.db.strokes, *stroke)
	return true, nil
}

func (r *memStrokes) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.Stroke, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*entity.Stroke
	for _, s := range r.db.strokes {
		keep := true
		for _, spec := range specs {
			switch f := spec.(type) {
			case specification.ByRoomID:
				keep = keep && s.RoomId == f.RoomID
			case specification.AfterSeq:
				keep = keep && (f.Seq == nil || s.Seq > *f.Seq)
			}
		}
		if keep {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r *memStrokes) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, err := r.FindAll(ctx, specs...)
	return int64(len(all)), err
}

func (r *memStrokes) DeleteByRoom(_ context.Context, roomId int64) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.strokes[:0:0]
	var deleted int64
	for _, s := range r.db.strokes {
		if s.RoomId == roomId {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	r.db.strokes = kept
	return deleted, nil
}

// hookedDB runs afterRoomRead once, right after the first room read of any
// unit of work it hands out.
type hookedDB struct {
	*memDB
	once          sync.Once
	afterRoomRead func()
}

func (db *hookedDB) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &hookedUoW{UnitOfWork: db.memDB.NewUnitOfWork(ctx), db: db}
}

type hookedUoW struct {
	unitofwork.UnitOfWork
	db *hookedDB
}

func (u *hookedUoW) RoomRepository() contract.RoomRepository {
	return &hookedRooms{RoomRepository: u.UnitOfWork.RoomRepository(), db: u.db}
}

type hookedRooms struct {
	contract.RoomRepository
	db *hookedDB
}

func (r *hookedRooms) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Room, error) {
	room, err := r.RoomRepository.FindOne(ctx, specs...)
	r.db.once.Do(r.db.afterRoomRead)
	return room, err
}

// staleLocks answers Get with a lock read earlier, as if another credential
// was issued between the read and whatever the caller does next.
type staleLocks struct {
	contract.ArchiveLockRepository
	stale *entity.ArchiveLock
}

func (r staleLocks) Get(context.Context, int64) (*entity.ArchiveLock, error) {
	copied := *r.stale
	return &copied, nil
}

type recordedChanges struct {
	mu      sync.Mutex
	changes []dto.RoomChange
}

func (r *recordedChanges) PublishRoomChange(_ context.Context, change dto.RoomChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
	return nil
}

func (r *recordedChanges) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.Type)
	}
	return out
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) Publish(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

// memBlobs keeps objects in a map and hands out fake signed urls.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte)}
}

func (b *memBlobs) SignedUploadURL(_ context.Context, objectPath, contentType string, size int64, ttl time.Duration) (*storage.SignedUpload, error) {
	return &storage.SignedUpload{
		URL:       "https://blobs.test/upload/" + objectPath,
		Method:    "PUT",
		Headers:   map[string]string{"Content-Type": contentType},
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (b *memBlobs) PublicURL(objectPath string) string {
	return "https://blobs.test/files/" + objectPath
}

func (b *memBlobs) Put(_ context.Context, objectPath, _ string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[objectPath] = data
	return nil
}

func (b *memBlobs) Exists(_ context.Context, objectPath string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[objectPath]
	return ok, nil
}

func (b *memBlobs) Delete(_ context.Context, objectPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, objectPath)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
