package memory

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"time"

	"paintroom-be/internal/entity"
	"paintroom-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

const lockRetention = 10 * time.Minute

// ArchiveLockRepository is the single-instance lock store.
type ArchiveLockRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewArchiveLockRepository() contract.ArchiveLockRepository {
	c := cache.New(cache.NoExpiration, 5*time.Minute)
	return &ArchiveLockRepository{cache: c}
}

func lockKey(roomId int64) string {
	return strconv.FormatInt(roomId, 10)
}

func (r *ArchiveLockRepository) Save(_ context.Context, lock *entity.ArchiveLock) error {
	stored := *lock
	r.mu.Lock()
	defer r.mu.Unlock()
	// Expired locks linger so Finish can tell "expired" from "unknown".
	ttl := time.Until(lock.ExpiresAt) + lockRetention
	if ttl < time.Second {
		ttl = time.Second
	}
	r.cache.Set(lockKey(lock.RoomId), &stored, ttl)
	return nil
}

func (r *ArchiveLockRepository) Get(_ context.Context, roomId int64) (*entity.ArchiveLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if x, found := r.cache.Get(lockKey(roomId)); found {
		copied := *x.(*entity.ArchiveLock)
		return &copied, nil
	}
	return nil, nil
}

func (r *ArchiveLockRepository) Consume(_ context.Context, lock *entity.ArchiveLock) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	x, found := r.cache.Get(lockKey(lock.RoomId))
	if !found {
		return false, nil
	}
	if !bytes.Equal(x.(*entity.ArchiveLock).SecretHash, lock.SecretHash) {
		return false, nil
	}
	r.cache.Delete(lockKey(lock.RoomId))
	return true, nil
}

func (r *ArchiveLockRepository) Delete(_ context.Context, roomId int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Delete(lockKey(roomId))
	return nil
}
