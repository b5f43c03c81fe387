package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache is the go-redis backed Cache.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// CachedProvider fronts another Provider with a TTL cache. Cache failures
// fall through to the wrapped provider.
type CachedProvider struct {
	next  Provider
	cache Cache
	ttl   time.Duration
	log   zerolog.Logger
}

func NewCachedProvider(next Provider, cache Cache, ttl time.Duration, log zerolog.Logger) *CachedProvider {
	return &CachedProvider{next: next, cache: cache, ttl: ttl, log: log}
}

func cacheKey(clinicID uuid.UUID) string {
	return "settings:clinic:" + clinicID.String()
}

func (p *CachedProvider) Clinic(ctx context.Context, clinicID uuid.UUID) (Clinic, error) {
	key := cacheKey(clinicID)

	b, err := p.cache.Get(ctx, key)
	switch {
	case err == nil:
		var c Clinic
		if jerr := json.Unmarshal(b, &c); jerr == nil {
			return c, nil
		}
		p.log.Warn().Str("key", key).Msg("discarding undecodable cached settings")
	case !errors.Is(err, ErrCacheMiss):
		p.log.Warn().Err(err).Str("key", key).Msg("settings cache read failed")
	}

	c, err := p.next.Clinic(ctx, clinicID)
	if err != nil {
		return Clinic{}, err
	}

	if b, err := json.Marshal(c); err == nil {
		if err := p.cache.Set(ctx, key, b, p.ttl); err != nil {
			p.log.Warn().Err(err).Str("key", key).Msg("settings cache write failed")
		}
	}
	return c, nil
}
