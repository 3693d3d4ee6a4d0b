package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/funnelforge/funnelforge/internal/config"
)

// scanBatchSize is the COUNT hint passed to redis SCAN during pattern deletes.
const scanBatchSize = 100

// RedisStore implements Store on top of a shared redis instance.
type RedisStore struct {
	client     *redis.Client
	namespace  string
	defaultTTL time.Duration
}

// NewRedisStore connects to redis using the cache settings and verifies the
// connection with a ping.
func NewRedisStore(cfg *config.Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.Cache.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.Cache.Namespace, cfg.Cache.DefaultTTL), nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests to inject
// a miniredis-backed client.
func NewRedisStoreWithClient(client *redis.Client, namespace string, defaultTTL time.Duration) *RedisStore {
	return &RedisStore{
		client:     client,
		namespace:  namespace,
		defaultTTL: defaultTTL,
	}
}

// Close releases the underlying redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Get returns the payload stored under (origin, key).
func (s *RedisStore) Get(ctx context.Context, origin, key string) ([]byte, bool, error) {
	payload, err := s.client.Get(ctx, s.formatKey(origin, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil // cache miss
	}

	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	return payload, true, nil
}

// Set stores payload under (origin, key) with the given TTL.
func (s *RedisStore) Set(ctx context.Context, origin, key string, payload []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = s.defaultTTL
	}

	if err := s.client.Set(ctx, s.formatKey(origin, key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// Delete removes the entry under (origin, key).
func (s *RedisStore) Delete(ctx context.Context, origin, key string) error {
	if err := s.client.Del(ctx, s.formatKey(origin, key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}

	return nil
}

// DeleteByPattern removes every entry of the origin matching the glob
// pattern. Uses SCAN to avoid blocking redis on large keyspaces.
func (s *RedisStore) DeleteByPattern(ctx context.Context, origin, pattern string) error {
	var keys []string

	iter := s.client.Scan(ctx, 0, s.formatKey(origin, pattern), scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}

	// deleting while the cursor is live can make SCAN skip keys, so the
	// deletes only start once the iteration has finished
	for start := 0; start < len(keys); start += scanBatchSize {
		end := start + scanBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		if err := s.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return fmt.Errorf("redis del failed: %w", err)
		}
	}

	log.Debug().Str("origin", origin).Str("pattern", pattern).Msg("cache keys deleted by pattern")

	return nil
}

// Reset drops every cache entry of this namespace. Intended for operational
// tooling, not the request path.
func (s *RedisStore) Reset(ctx context.Context) error {
	return s.DeleteByPattern(ctx, "*", "*")
}

// formatKey renders the shared cross-process key layout.
func (s *RedisStore) formatKey(origin, key string) string {
	return fmt.Sprintf("%s:cache:%s:%s", s.namespace, origin, key)
}
