package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"heartline/internal/observability"
)

const (
	feedVersionKey = "feed:version"
	postKeyPrefix  = "post:%d"
	feedKeyPrefix  = "feed:v%d:limit:%d:offset:%d"
)

// Store is a JSON cache over Redis. A nil Store or nil client turns every call into a miss.
type Store struct {
	rdb *redis.Client
}

// NewStore wraps rdb, which may be nil.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Client exposes the underlying client for rate limiting and pub/sub.
func (s *Store) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.rdb
}

func (s *Store) enabled() bool {
	return s != nil && s.rdb != nil
}

// PostKey is the cache key for a single post.
func PostKey(postID uint) string {
	return fmt.Sprintf(postKeyPrefix, postID)
}

// FeedKey is the cache key for a feed page under the current feed version.
func (s *Store) FeedKey(ctx context.Context, limit, offset int) string {
	var version int64
	if s.enabled() {
		v, err := s.rdb.Get(ctx, feedVersionKey).Int64()
		if err == nil {
			version = v
		}
	}
	return fmt.Sprintf(feedKeyPrefix, version, limit, offset)
}

// InvalidateFeed retires every cached feed page by bumping the feed version.
func (s *Store) InvalidateFeed(ctx context.Context) {
	if !s.enabled() {
		return
	}
	if err := s.rdb.Incr(ctx, feedVersionKey).Err(); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "feed cache invalidation failed", "error", err)
	}
}

// Invalidate deletes key.
func (s *Store) Invalidate(ctx context.Context, key string) {
	if !s.enabled() {
		return
	}
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "cache invalidation failed", "key", key, "error", err)
	}
}

// GetJSON reads key into dest. It returns false on a miss.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if !s.enabled() {
		return false, nil
	}
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores v under key for ttl.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if !s.enabled() {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, b, ttl).Err()
}

// Aside serves dest from Redis, or calls fetch to fill it and caches the result.
// Redis failures degrade to calling fetch.
func (s *Store) Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	ctx, span := observability.TraceRedisOperation(ctx, "aside")
	defer span.End()

	found, err := s.GetJSON(ctx, key, dest)
	if err != nil {
		observability.RecordErrorInContext(ctx, err)
		observability.GlobalLogger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
	}
	if found {
		return nil
	}

	if err := fetch(); err != nil {
		return err
	}

	if err := s.SetJSON(ctx, key, dest, ttl); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
	return nil
}
