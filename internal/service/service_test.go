package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"paintroom-be/internal/dto"
	"paintroom-be/internal/entity"
	"paintroom-be/internal/pkg/apperr"
	"paintroom-be/internal/pkg/logger"
	"paintroom-be/internal/repository/contract"
	"paintroom-be/internal/repository/memory"
	"paintroom-be/pkg/events"
	"paintroom-be/pkg/humancheck"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRoom   int64 = 1
	humanToken       = "human-ok"
)

type fixture struct {
	db       *memDB
	locks    contract.ArchiveLockRepository
	presence contract.PresenceRepository
	blobs    *memBlobs
	changes  *recordedChanges
	events   *recordedEvents
	clock    *fakeClock
	rules    SessionRules

	strokes    IStrokeService
	sessions   ISessionService
	archives   IArchiveService
	thumbnails IThumbnailService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		db:       newMemDB(),
		locks:    memory.NewArchiveLockRepository(),
		presence: memory.NewPresenceRepository(time.Minute),
		blobs:    newMemBlobs(),
		changes:  &recordedChanges{},
		events:   &recordedEvents{},
		clock:    newFakeClock(),
	}
	f.rules = SessionRules{
		TimeLimit:       60 * time.Minute,
		LockTTL:         5 * time.Minute,
		MaxUploadBytes:  1024,
		ThumbnailMinGap: time.Minute,
		Now:             f.clock.Now,
	}
	f.db.addRoom(entity.Room{Id: testRoom, Name: "Room 1"})

	log := logger.NewNopLogger()
	verifier := humancheck.NewStaticVerifier(humanToken)

	f.strokes = NewStrokeService(f.db, f.changes, log)
	f.sessions = NewSessionService(f.db, f.locks, f.blobs, verifier, f.strokes, f.changes, f.events, f.rules, log)
	f.archives = NewArchiveService(f.db, f.locks, f.blobs, verifier, f.rules, log)
	f.thumbnails = NewThumbnailService(f.db, f.presence, f.blobs, f.changes, f.events, f.rules, log)
	return f
}

func strokeReq(id string) *dto.SubmitStrokeRequest {
	return &dto.SubmitStrokeRequest{
		Id:       id,
		Points:   []float64{10, 10, 50, 50},
		Color:    "#112233",
		Width:    4,
		Tool:     entity.ToolPen,
		LayerId:  1,
		UserId:   "alice",
		UserName: "Alice",
	}
}

// archive runs the client side of the archive pipeline: credential, upload.
func (f *fixture) archive(t *testing.T) *dto.ArchiveCredentialResponse {
	t.Helper()
	cred, err := f.archives.IssueCredential(context.Background(), testRoom, &dto.ArchiveCredentialRequest{Token: humanToken, Size: 100})
	require.NoError(t, err)
	require.NoError(t, f.blobs.Put(context.Background(), cred.ObjectPath, "image/png", []byte("png")))
	return cred
}

func TestClearAllIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		deleted, err := f.strokes.ClearAll(ctx, testRoom)
		require.NoError(t, err)
		assert.Equal(t, int64(0), deleted)
	}
	assert.Equal(t, []string{dto.EventStrokesCleared, dto.EventStrokesCleared}, f.changes.types())
}

func TestListSinceReplaysInCommitOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Start(ctx, testRoom, humanToken)
	require.NoError(t, err)

	var seqs []int64
	for _, id := range []string{"s1", "s2", "s3"} {
		res, err := f.strokes.Submit(ctx, testRoom, strokeReq(id))
		require.NoError(t, err)
		seqs = append(seqs, res.Seq)
	}

	all, err := f.strokes.ListSince(ctx, testRoom, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s1", all[0].Id)
	assert.Equal(t, "s3", all[2].Id)

	tail, err := f.strokes.ListSince(ctx, testRoom, &seqs[0])
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "s2", tail[0].Id)

	_, err = f.strokes.ListSince(ctx, 99, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSubmitStroke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("rejected while idle", func(t *testing.T) {
		_, err := f.strokes.Submit(ctx, testRoom, strokeReq("s1"))
		assert.ErrorIs(t, err, apperr.ErrSessionNotActive)
	})

	_, err := f.sessions.Start(ctx, testRoom, humanToken)
	require.NoError(t, err)

	t.Run("invalid shape", func(t *testing.T) {
		req := strokeReq("bad")
		req.Points = []float64{1}
		_, err := f.strokes.Submit(ctx, testRoom, req)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("retry is not broadcast twice", func(t *testing.T) {
		before := len(f.changes.types())
		first, err := f.strokes.Submit(ctx, testRoom, strokeReq("dup"))
		require.NoError(t, err)
		second, err := f.strokes.Submit(ctx, testRoom, strokeReq("dup"))
		require.NoError(t, err)

		assert.Equal(t, first.Seq, second.Seq)
		assert.Equal(t, 1, f.db.strokeCount(testRoom))
		assert.Len(t, f.changes.types(), before+1)
	})
}

func TestSubmitRacingFinishLeavesNoStroke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Start(ctx, testRoom, humanToken)
	require.NoError(t, err)
	cred := f.archive(t)

	finished := make(chan error, 1)
	hooked := &hookedDB{memDB: f.db}
	hooked.afterRoomRead = func() {
		// Finish starts between the active check and the insert
		go func() {
			_, err := f.sessions.Finish(ctx, testRoom, &dto.FinishSessionRequest{ArtifactUrl: cred.PublicUrl, FinishToken: cred.FinishToken})
			finished <- err
		}()
		select {
		case err := <-finished:
			finished <- err
		case <-time.After(100 * time.Millisecond):
		}
	}
	strokes := NewStrokeService(hooked, f.changes, logger.NewNopLogger())

	_, err = strokes.Submit(ctx, testRoom, strokeReq("late"))
	if err != nil {
		assert.ErrorIs(t, err, apperr.ErrSessionNotActive)
	}

	select {
	case err := <-finished:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("finish did not complete")
	}

	assert.False(t, f.db.room(testRoom).IsActive)
	assert.Zero(t, f.db.strokeCount(testRoom), "no stroke may outlive the session")
}

func TestStartSession(t *testing.T) {
	ctx := context.Background()

	t.Run("fails closed on bad token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.sessions.Start(ctx, testRoom, "robot")
		assert.ErrorIs(t, err, apperr.ErrAuth)
		assert.False(t, f.db.room(testRoom).IsActive)
		assert.Empty(t, f.changes.types())
	})

	t.Run("clears residual strokes", func(t *testing.T) {
		f := newFixture(t)
		f.db.strokes = append(f.db.strokes, entity.Stroke{Seq: 1, Id: "old", RoomId: testRoom})

		room, err := f.sessions.Start(ctx, testRoom, humanToken)
		require.NoError(t, err)
		assert.True(t, room.IsActive)
		assert.Equal(t, f.clock.Now(), *room.SessionStartAt)
		assert.Equal(t, f.clock.Now().Add(time.Hour), *room.SessionEndsAt)
		assert.Zero(t, f.db.strokeCount(testRoom))
		assert.Equal(t, []string{dto.EventStrokesCleared, dto.EventRoomUpdated}, f.changes.types())
		assert.Equal(t, []string{events.SessionStarted}, f.events.types())
	})

	t.Run("rejected on active room", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.sessions.Start(ctx, testRoom, humanToken)
		require.NoError(t, err)
		_, err = f.strokes.Submit(ctx, testRoom, strokeReq("keep"))
		require.NoError(t, err)

		_, err = f.sessions.Start(ctx, testRoom, humanToken)
		assert.ErrorIs(t, err, apperr.ErrSessionActive)
		assert.Equal(t, 1, f.db.strokeCount(testRoom))
	})

	t.Run("one winner among racing starts", func(t *testing.T) {
		f := newFixture(t)
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := f.sessions.Start(ctx, testRoom, humanToken); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("unknown room", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.sessions.Start(ctx, 42, humanToken)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestSessionLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Start(ctx, testRoom, humanToken)
	require.NoError(t, err)
	_, err = f.strokes.Submit(ctx, testRoom, strokeReq("s1"))
	require.NoError(t, err)

	cred := f.archive(t)
	assert.True(t, strings.HasPrefix(cred.ObjectPath, "archives/room_1/"))
	assert.Len(t, cred.FinishToken, 64)

	_, err = f.sessions.Finish(ctx, testRoom, &dto.FinishSessionRequest{ArtifactUrl: cred.PublicUrl, FinishToken: "wrong"})
	assert.ErrorIs(t, err, apperr.ErrAuth)
	assert.True(t, f.db.room(testRoom).IsActive)

	room, err := f.sessions.Finish(ctx, testRoom, &dto.FinishSessionRequest{ArtifactUrl: cred.PublicUrl, FinishToken: cred.FinishToken})
	require.NoError(t, err)
	assert.False(t, room.IsActive)
	assert.Nil(t, room.SessionStartAt)
	require.NotNil(t, room.LastSessionImageUrl)
	assert.Equal(t, cred.PublicUrl, *room.LastSessionImageUrl)
	assert.Equal(t, f.clock.Now(), *room.LastSessionEndedAt)
	assert.Zero(t, f.db.strokeCount(testRoom))

	assert.Equal(t, []string{events.SessionStarted, events.SessionFinished}, f.events.types())
	types := f.changes.types()
	assert.Equal(t, dto.EventRoomUpdated, types[len(types)-1])
}

func TestFinishSession(t *testing.T) {
	ctx := context.Background()

	start := func(t *testing.T) *fixture {
		f := newFixture(t)
		_, err := f.sessions.Start(ctx, testRoom, humanToken)
		require.NoError(t, err)
		return f
	}

	t.Run("lock is single use", func(t *testing.T) {
		f := start(t)
		cred := f.archive(t)
		req := &dto.FinishSessionRequest{ArtifactUrl: cred.PublicUrl, FinishToken: cred.FinishToken}

		_, err := f.sessions.Finish(ctx, testRoom, req)
		require.NoError(t, err)
		_, err = f.sessions.Finish(ctx, testRoom, req)
		assert.ErrorIs(t, err, apperr.ErrAuth)
	})

	t.Run("expired lock is removed", func(t *testing.T) {
		f := start(t)
		cred := f.archive(t)
		req := &dto.FinishSessionRequest{ArtifactUrl: cred.PublicUrl, FinishToken: cred.FinishToken}

		f.clock.Advance(6 * time.Minute)
		_, err := f.sessions.Finish(ctx, testRoom, req)
		assert.ErrorIs(t, err, apperr.ErrExpired)

		lock, err := f.locks.Get(ctx, testRoom)
		require.NoError(t, err)
		assert.Nil(t, lock)
		assert.True(t, f.db.room(testRoom).IsActive)

		exists, err := f.blobs.Exists(ctx, cred.ObjectPath)
		require.NoError(t, err)
		assert.False(t, exists, "expired artifact should be deleted")
	})

	t.Run("expired finish keeps a newer credential", func(t *testing.T) {
		f := start(t)
		first := f.archive(t)
		old, err := f.locks.Get(ctx, testRoom)
		require.NoError(t, err)

		f.clock.Advance(6 * time.Minute)
		second := f.archive(t)

		sessions := NewSessionService(f.db, staleLocks{ArchiveLockRepository: f.locks, stale: old}, f.blobs,
			humancheck.NewStaticVerifier(humanToken), f.strokes, f.changes, f.events, f.rules, logger.NewNopLogger())
		_, err = sessions.Finish(ctx, testRoom, &dto.FinishSessionRequest{ArtifactUrl: first.PublicUrl, FinishToken: first.FinishToken})
		assert.ErrorIs(t, err, apperr.ErrExpired)

		lock, err := f.locks.Get(ctx, testRoom)
		require.NoError(t, err)
		require.NotNil(t, lock)
		assert.Equal(t, second.PublicUrl, lock.PublicUrl)

		_, err = f.sessions.Finish(ctx, testRoom, &dto.FinishSessionRequest{ArtifactUrl: second.PublicUrl, FinishToken: second.FinishToken})
		assert.NoError(t, err)
	})

	t.Run("artifact deleted when room closed after consume", func(t *testing.T) {
		f := start(t)
		cred := f.archive(t)

		ok, err := f.db.NewUnitOfWork(ctx).RoomRepository().Deactivate(ctx, testRoom, "https://blobs.test/files/other.png", f.clock.Now())
		require.NoError(t, err)
		require.True(t, ok)

		_, err = f.sessions.Finish(ctx, testRoom, &dto.FinishSessionRequest{ArtifactUrl: cred.PublicUrl, FinishToken: cred.FinishToken})
		assert.ErrorIs(t, err, apperr.ErrSessionNotActive)

		exists, err := f.blobs.Exists(ctx, cred.ObjectPath)
		require.NoError(t, err)
		assert.False(t, exists)
		assert.Equal(t, "https://blobs.test/files/other.png", *f.db.room(testRoom).LastSessionImageUrl)
	})

	t.Run("missing lock", func(t *testing.T) {
		f := start(t)
		_, err := f.sessions.Finish(ctx, testRoom, &dto.FinishSessionRequest{ArtifactUrl: "https://x.test/a.png", FinishToken: "t"})
		assert.ErrorIs(t, err, apperr.ErrAuth)
	})

	t.Run("foreign artifact url", func(t *testing.T) {
		f := start(t)
		cred := f.archive(t)
		_, err := f.sessions.Finish(ctx, testRoom, &dto.FinishSessionRequest{ArtifactUrl: "https://evil.test/a.png", FinishToken: cred.FinishToken})
		assert.ErrorIs(t, err, apperr.ErrAuth)
	})

	t.Run("artifact not uploaded keeps the lock", func(t *testing.T) {
		f := start(t)
		cred, err := f.archives.IssueCredential(ctx, testRoom, &dto.ArchiveCredentialRequest{Token: humanToken, Size: 100})
		require.NoError(t, err)
		req := &dto.FinishSessionRequest{ArtifactUrl: cred.PublicUrl, FinishToken: cred.FinishToken}

		_, err = f.sessions.Finish(ctx, testRoom, req)
		assert.ErrorIs(t, err, apperr.ErrUpload)

		require.NoError(t, f.blobs.Put(ctx, cred.ObjectPath, "image/png", []byte("png")))
		_, err = f.sessions.Finish(ctx, testRoom, req)
		assert.NoError(t, err)
	})

	t.Run("reissued credential replaces the previous one", func(t *testing.T) {
		f := start(t)
		first := f.archive(t)
		f.clock.Advance(time.Second)
		second := f.archive(t)

		_, err := f.sessions.Finish(ctx, testRoom, &dto.FinishSessionRequest{ArtifactUrl: first.PublicUrl, FinishToken: first.FinishToken})
		assert.ErrorIs(t, err, apperr.ErrAuth)

		_, err = f.sessions.Finish(ctx, testRoom, &dto.FinishSessionRequest{ArtifactUrl: second.PublicUrl, FinishToken: second.FinishToken})
		assert.NoError(t, err)
	})
}

func TestIssueArchiveCredential(t *testing.T) {
	ctx := context.Background()

	t.Run("size limit checked first", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.sessions.Start(ctx, testRoom, humanToken)
		require.NoError(t, err)

		_, err = f.archives.IssueCredential(ctx, testRoom, &dto.ArchiveCredentialRequest{Token: humanToken, Size: 4096})
		assert.ErrorIs(t, err, apperr.ErrSizeLimit)

		lock, err := f.locks.Get(ctx, testRoom)
		require.NoError(t, err)
		assert.Nil(t, lock)
	})

	t.Run("idle room", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.archives.IssueCredential(ctx, testRoom, &dto.ArchiveCredentialRequest{Token: humanToken, Size: 10})
		assert.ErrorIs(t, err, apperr.ErrSessionNotActive)
	})

	t.Run("bad human token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.sessions.Start(ctx, testRoom, humanToken)
		require.NoError(t, err)
		_, err = f.archives.IssueCredential(ctx, testRoom, &dto.ArchiveCredentialRequest{Token: "robot", Size: 10})
		assert.ErrorIs(t, err, apperr.ErrAuth)
	})

	t.Run("system kind only after expiry", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.sessions.Start(ctx, testRoom, humanToken)
		require.NoError(t, err)

		req := &dto.ArchiveCredentialRequest{Kind: entity.LockKindSystem, Size: 10}
		_, err = f.archives.IssueCredential(ctx, testRoom, req)
		assert.ErrorIs(t, err, apperr.ErrAuth)

		f.clock.Advance(61 * time.Minute)
		cred, err := f.archives.IssueCredential(ctx, testRoom, req)
		require.NoError(t, err)

		lock, err := f.locks.Get(ctx, testRoom)
		require.NoError(t, err)
		assert.Equal(t, entity.LockKindSystem, lock.Kind)
		assert.Equal(t, cred.PublicUrl, lock.PublicUrl)
		assert.NotContains(t, string(lock.SecretHash), cred.FinishToken)
	})
}

func TestStoreServerArtifact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Start(ctx, testRoom, humanToken)
	require.NoError(t, err)

	_, err = f.archives.StoreServerArtifact(ctx, testRoom, []byte("png"))
	assert.ErrorIs(t, err, apperr.ErrAuth)

	f.clock.Advance(70 * time.Minute)
	req, err := f.archives.StoreServerArtifact(ctx, testRoom, []byte("png"))
	require.NoError(t, err)

	room, err := f.sessions.Finish(ctx, testRoom, req)
	require.NoError(t, err)
	assert.False(t, room.IsActive)
	assert.Equal(t, req.ArtifactUrl, *room.LastSessionImageUrl)
}

func TestThumbnailService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Start(ctx, testRoom, humanToken)
	require.NoError(t, err)

	now := f.clock.Now()
	require.NoError(t, f.presence.Track(ctx, testRoom, entity.Presence{ConnId: "c1", UserId: "bob", Name: "Bob", JoinedAt: now}))
	require.NoError(t, f.presence.Track(ctx, testRoom, entity.Presence{ConnId: "c2", UserId: "alice", Name: "Alice", JoinedAt: now}))
	require.NoError(t, f.presence.Track(ctx, testRoom, entity.Presence{ConnId: "c3", UserId: "alice", Name: "Alice", JoinedAt: now}))

	_, err = f.thumbnails.IssueCredential(ctx, testRoom, &dto.ThumbnailCredentialRequest{UserId: "bob", Size: 10})
	assert.ErrorIs(t, err, apperr.ErrNotLeader)

	cred, err := f.thumbnails.IssueCredential(ctx, testRoom, &dto.ThumbnailCredentialRequest{UserId: "alice", Size: 10})
	require.NoError(t, err)
	assert.Equal(t, "thumbnails/room_1.jpg", cred.ObjectPath)

	_, err = f.thumbnails.Update(ctx, testRoom, &dto.UpdateThumbnailRequest{UserId: "alice"})
	assert.ErrorIs(t, err, apperr.ErrUpload)

	require.NoError(t, f.blobs.Put(ctx, cred.ObjectPath, "image/jpeg", []byte("jpg")))
	room, err := f.thumbnails.Update(ctx, testRoom, &dto.UpdateThumbnailRequest{UserId: "alice"})
	require.NoError(t, err)
	require.NotNil(t, room.ThumbnailUrl)
	assert.True(t, strings.HasPrefix(*room.ThumbnailUrl, cred.PublicUrl+"?v="))

	_, err = f.thumbnails.Update(ctx, testRoom, &dto.UpdateThumbnailRequest{UserId: "alice"})
	assert.ErrorIs(t, err, apperr.ErrRateLimited)

	f.clock.Advance(2 * time.Minute)
	_, err = f.thumbnails.Update(ctx, testRoom, &dto.UpdateThumbnailRequest{UserId: "alice"})
	assert.NoError(t, err)
	assert.Contains(t, f.events.types(), events.ThumbnailUpdated)
}

func TestLobbyService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.db.addRoom(entity.Room{Id: 2, Name: "Room 2"})

	lobby := NewLobbyService(f.db, f.presence, nil, f.rules, time.Minute, logger.NewNopLogger())
	require.NoError(t, lobby.Start())

	require.NoError(t, f.presence.Track(ctx, testRoom, entity.Presence{ConnId: "c1", UserId: "alice", JoinedAt: time.Now()}))
	require.NoError(t, f.presence.Track(ctx, testRoom, entity.Presence{ConnId: "c2", UserId: "alice", JoinedAt: time.Now()}))

	items, err := lobby.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Participants)
	assert.False(t, items[0].IsActive)

	_, err = f.sessions.Start(ctx, testRoom, humanToken)
	require.NoError(t, err)

	cached, err := lobby.List(ctx)
	require.NoError(t, err)
	assert.False(t, cached[0].IsActive)

	lobby.HandleRoomChange(dto.RoomChange{Type: dto.EventRoomUpdated, RoomId: testRoom})
	fresh, err := lobby.List(ctx)
	require.NoError(t, err)
	assert.True(t, fresh[0].IsActive)

	members, err := lobby.Presence(ctx, testRoom)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].Id)
}
