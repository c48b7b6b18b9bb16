package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shubham-shewale/market-pulse/pkg/models"
)

const keyPrefix = "quote:"

// Compile-time check to ensure RedisStore implements SnapshotStore
var _ SnapshotStore = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// SaveUpdates writes all updates of a cycle in one pipeline round trip.
func (r *RedisStore) SaveUpdates(ctx context.Context, updates map[string]models.UpdateMessage) error {
	if len(updates) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for canonical, u := range updates {
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", canonical, err)
		}
		pipe.Set(ctx, keyPrefix+canonical, data, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshots: %w", err)
	}
	return nil
}

// GetSnapshots fetches the latest update for each symbol (MGET). Missing or
// unreadable entries are left out.
func (r *RedisStore) GetSnapshots(ctx context.Context, canonicals []string) (map[string]models.UpdateMessage, error) {
	if len(canonicals) == 0 {
		return nil, nil
	}

	keys := make([]string, len(canonicals))
	for i, sym := range canonicals {
		keys[i] = keyPrefix + sym
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	snapshots := make(map[string]models.UpdateMessage, len(results))
	for i, val := range results {
		payload, ok := val.(string)
		if !ok || payload == "" {
			continue
		}
		var u models.UpdateMessage
		if err := json.Unmarshal([]byte(payload), &u); err != nil {
			continue
		}
		snapshots[canonicals[i]] = u
	}
	return snapshots, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
