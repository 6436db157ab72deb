// Package snapshot persists parsed sanctions lists in Redis so a restarted
// process can warm its cache without refetching multi-megabyte exports.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/acuityrisk/sanctionscan/internal/config"
	"github.com/acuityrisk/sanctionscan/internal/screening"
)

const keyPrefix = "sanctions:list:"

// RedisStore implements screening.SnapshotStore on a Redis key per source.
// All operations are best effort; a Redis outage degrades to cold-cache
// behavior rather than failing screening.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

type snapshotPayload struct {
	FetchedAt time.Time              `json:"fetched_at"`
	Entities  []screening.ListEntity `json:"entities"`
}

// NewRedisStore connects to Redis and verifies the connection. Snapshots
// are kept for ttl plus a grace hour so a snapshot slightly past the cache
// TTL is still available for stale serving.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig, ttl time.Duration, logger *zap.SugaredLogger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}
	return &RedisStore{
		client: client,
		ttl:    ttl + time.Hour,
		logger: logger,
	}, nil
}

// Load returns the stored snapshot for a source, if any.
func (s *RedisStore) Load(ctx context.Context, source string) ([]screening.ListEntity, time.Time, bool) {
	raw, err := s.client.Get(ctx, keyPrefix+source).Bytes()
	if err == redis.Nil {
		return nil, time.Time{}, false
	}
	if err != nil {
		s.logger.Warnw("Failed to load list snapshot", "source", source, "error", err)
		return nil, time.Time{}, false
	}

	var payload snapshotPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Warnw("Discarding corrupt list snapshot", "source", source, "error", err)
		s.client.Del(ctx, keyPrefix+source)
		return nil, time.Time{}, false
	}
	return payload.Entities, payload.FetchedAt, true
}

// Save stores a freshly parsed list for a source.
func (s *RedisStore) Save(ctx context.Context, source string, fetchedAt time.Time, entities []screening.ListEntity) {
	raw, err := json.Marshal(snapshotPayload{FetchedAt: fetchedAt, Entities: entities})
	if err != nil {
		s.logger.Warnw("Failed to encode list snapshot", "source", source, "error", err)
		return
	}
	if err := s.client.Set(ctx, keyPrefix+source, raw, s.ttl).Err(); err != nil {
		s.logger.Warnw("Failed to save list snapshot", "source", source, "error", err)
	}
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
