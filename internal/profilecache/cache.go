// Package profilecache is a Redis read-through cache of profile summaries.
package profilecache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/sociallink/internal/model"
)

// DefaultTTL bounds how long a summary may be served after a missed invalidation.
const DefaultTTL = 10 * time.Minute

// Source loads summaries on a cache miss.
type Source interface {
	Summary(ctx context.Context, id uuid.UUID) (model.ProfileSummary, error)
}

// Cache serves summaries from Redis, falling back to Source. A nil client
// turns it into a pass-through. Redis failures never fail a lookup.
type Cache struct {
	rdb *redis.Client
	src Source
	ttl time.Duration
	log *zap.Logger
}

// New constructs a cache over src.
func New(rdb *redis.Client, src Source, ttl time.Duration, log *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{rdb: rdb, src: src, ttl: ttl, log: log}
}

// Dial connects to addr; an empty addr yields a nil client (cache disabled).
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func key(id uuid.UUID) string { return "profile:summary:" + id.String() }

// Summary returns the cached summary of id or loads and stores it.
func (c *Cache) Summary(ctx context.Context, id uuid.UUID) (model.ProfileSummary, error) {
	if c.rdb == nil {
		return c.src.Summary(ctx, id)
	}
	data, err := c.rdb.Get(ctx, key(id)).Bytes()
	switch {
	case err == nil:
		var s model.ProfileSummary
		if uErr := json.Unmarshal(data, &s); uErr == nil {
			return s, nil
		}
	case !errors.Is(err, redis.Nil):
		c.log.Debug("profile cache get failed", zap.String("profile_id", id.String()), zap.Error(err))
	}

	s, err := c.src.Summary(ctx, id)
	if err != nil {
		return model.ProfileSummary{}, err
	}
	if payload, err := json.Marshal(s); err == nil {
		if err := c.rdb.Set(ctx, key(id), payload, c.ttl).Err(); err != nil {
			c.log.Debug("profile cache set failed", zap.String("profile_id", id.String()), zap.Error(err))
		}
	}
	return s, nil
}

// Invalidate drops the cached summary of id.
func (c *Cache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, key(id)).Err()
}
