package implementation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"paintroom-be/internal/entity"
	"paintroom-be/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

type presenceRecord struct {
	entity.Presence
	LastHeartbeat int64 `json:"last_heartbeat"`
}

// PresenceRepositoryRedis keeps one hash per room, one field per connection.
// Entries whose heartbeat is older than ttl are treated as gone.
type PresenceRepositoryRedis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresenceRepositoryRedis(client *redis.Client, ttl time.Duration) contract.PresenceRepository {
	return &PresenceRepositoryRedis{client: client, ttl: ttl}
}

func (r *PresenceRepositoryRedis) key(roomId int64) string {
	return fmt.Sprintf("presence:room:%d", roomId)
}

func (r *PresenceRepositoryRedis) write(ctx context.Context, roomId int64, rec presenceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.key(roomId), rec.ConnId, data)
	pipe.Expire(ctx, r.key(roomId), 2*r.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *PresenceRepositoryRedis) Track(ctx context.Context, roomId int64, p entity.Presence) error {
	return r.write(ctx, roomId, presenceRecord{Presence: p, LastHeartbeat: time.Now().Unix()})
}

func (r *PresenceRepositoryRedis) Touch(ctx context.Context, roomId int64, connId string) error {
	val, err := r.client.HGet(ctx, r.key(roomId), connId).Result()
	if err == redis.Nil {
		return fmt.Errorf("connection %s not tracked in room %d", connId, roomId)
	}
	if err != nil {
		return err
	}

	var rec presenceRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return err
	}
	rec.LastHeartbeat = time.Now().Unix()
	return r.write(ctx, roomId, rec)
}

func (r *PresenceRepositoryRedis) Untrack(ctx context.Context, roomId int64, connId string) error {
	return r.client.HDel(ctx, r.key(roomId), connId).Err()
}

func (r *PresenceRepositoryRedis) List(ctx context.Context, roomId int64) ([]entity.Presence, error) {
	fields, err := r.client.HGetAll(ctx, r.key(roomId)).Result()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-r.ttl).Unix()
	result := make([]entity.Presence, 0, len(fields))
	stale := make([]string, 0)
	for connId, val := range fields {
		var rec presenceRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil || rec.LastHeartbeat < cutoff {
			stale = append(stale, connId)
			continue
		}
		result = append(result, rec.Presence)
	}

	if len(stale) > 0 {
		r.client.HDel(ctx, r.key(roomId), stale...)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result, nil
}
