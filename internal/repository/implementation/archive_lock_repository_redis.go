package implementation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"paintroom-be/internal/entity"
	"paintroom-be/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

// Expired locks must stay readable for a while so Finish can answer
// "expired" instead of "unknown".
const lockRetention = 10 * time.Minute

var consumeLockScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
if cjson.decode(v)['secret_hash'] == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type ArchiveLockRepositoryRedis struct {
	client *redis.Client
}

func NewArchiveLockRepositoryRedis(client *redis.Client) contract.ArchiveLockRepository {
	return &ArchiveLockRepositoryRedis{client: client}
}

func (r *ArchiveLockRepositoryRedis) key(roomId int64) string {
	return fmt.Sprintf("archive_lock:room:%d", roomId)
}

func (r *ArchiveLockRepositoryRedis) Save(ctx context.Context, lock *entity.ArchiveLock) error {
	stored := *lock
	stored.ExpiresAt = lock.ExpiresAt.UTC()
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	ttl := time.Until(stored.ExpiresAt) + lockRetention
	return r.client.Set(ctx, r.key(lock.RoomId), data, ttl).Err()
}

func (r *ArchiveLockRepositoryRedis) Get(ctx context.Context, roomId int64) (*entity.ArchiveLock, error) {
	val, err := r.client.Get(ctx, r.key(roomId)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var lock entity.ArchiveLock
	if err := json.Unmarshal([]byte(val), &lock); err != nil {
		return nil, err
	}
	return &lock, nil
}

func (r *ArchiveLockRepositoryRedis) Consume(ctx context.Context, lock *entity.ArchiveLock) (bool, error) {
	hash := base64.StdEncoding.EncodeToString(lock.SecretHash)
	n, err := consumeLockScript.Run(ctx, r.client, []string{r.key(lock.RoomId)}, hash).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *ArchiveLockRepositoryRedis) Delete(ctx context.Context, roomId int64) error {
	return r.client.Del(ctx, r.key(roomId)).Err()
}
