package profile

import (
	"context"
	"encoding/json"
	"time"

	"connect-service/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cachePrefix     = "profile:"
	DefaultCacheTTL = 5 * time.Minute
)

// CachedReader keeps profiles in Redis as JSON. Any Redis failure falls back
// to the wrapped reader.
type CachedReader struct {
	next  Reader
	redis *redis.Client
	ttl   time.Duration
	log   *zap.Logger
}

func NewCachedReader(next Reader, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedReader {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedReader{next: next, redis: client, ttl: ttl, log: log}
}

func (c *CachedReader) Lookup(ctx context.Context, id string) (model.PublicProfile, error) {
	profiles, err := c.LookupMany(ctx, []string{id})
	if err != nil {
		return model.PublicProfile{ID: id}, err
	}
	return profiles[id], nil
}

func (c *CachedReader) LookupMany(ctx context.Context, ids []string) (map[string]model.PublicProfile, error) {
	ids = unique(ids)
	out := make(map[string]model.PublicProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cachePrefix + id
	}

	missing := ids
	values, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("profile cache read failed", zap.Error(err))
	} else {
		missing = missing[:0:0]
		for i, v := range values {
			raw, ok := v.(string)
			var p model.PublicProfile
			if !ok || json.Unmarshal([]byte(raw), &p) != nil {
				missing = append(missing, ids[i])
				continue
			}
			out[ids[i]] = p
		}
	}

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.next.LookupMany(ctx, missing)
	if err != nil {
		return out, err
	}

	pipe := c.redis.Pipeline()
	for id, p := range fetched {
		out[id] = p
		raw, _ := json.Marshal(p)
		pipe.Set(ctx, cachePrefix+id, raw, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("profile cache write failed", zap.Error(err))
	}
	return out, nil
}
