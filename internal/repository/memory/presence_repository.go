package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"paintroom-be/internal/entity"
	"paintroom-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

// PresenceRepository stores one cache item per connection; the item TTL
// plays the role of the heartbeat timeout.
type PresenceRepository struct {
	cache *cache.Cache
}

func NewPresenceRepository(ttl time.Duration) contract.PresenceRepository {
	return &PresenceRepository{cache: cache.New(ttl, ttl)}
}

func presenceKey(roomId int64, connId string) string {
	return fmt.Sprintf("%d/%s", roomId, connId)
}

func (r *PresenceRepository) Track(_ context.Context, roomId int64, p entity.Presence) error {
	r.cache.Set(presenceKey(roomId, p.ConnId), p, cache.DefaultExpiration)
	return nil
}

func (r *PresenceRepository) Touch(_ context.Context, roomId int64, connId string) error {
	key := presenceKey(roomId, connId)
	x, found := r.cache.Get(key)
	if !found {
		return fmt.Errorf("connection %s not tracked in room %d", connId, roomId)
	}
	r.cache.Set(key, x, cache.DefaultExpiration)
	return nil
}

func (r *PresenceRepository) Untrack(_ context.Context, roomId int64, connId string) error {
	r.cache.Delete(presenceKey(roomId, connId))
	return nil
}

func (r *PresenceRepository) List(_ context.Context, roomId int64) ([]entity.Presence, error) {
	prefix := fmt.Sprintf("%d/", roomId)
	result := make([]entity.Presence, 0)
	for key, item := range r.cache.Items() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		result = append(result, item.Object.(entity.Presence))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result, nil
}
