package businessflow

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// errCacheMiss is returned by tokenCache.Get for an absent key
var errCacheMiss = errors.New("cache miss")

// tokenCache is the storage behind the list cache. List entries live under keys scoped
// by a generation number; every successful create bumps the generation, so a list
// computed before the create can be written but is never read back.
type tokenCache interface {
	Generation(ctx context.Context) (int64, error)
	Bump(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// redisTokenCache implements tokenCache on redis; the generation is a plain INCR counter
type redisTokenCache struct {
	rc            *redis.Client
	generationKey string
}

func newRedisTokenCache(rc *redis.Client, prefix string) *redisTokenCache {
	return &redisTokenCache{
		rc:            rc,
		generationKey: prefix + "tokens:generation",
	}
}

func (c *redisTokenCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.rc.Get(ctx, c.generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *redisTokenCache) Bump(ctx context.Context) error {
	return c.rc.Incr(ctx, c.generationKey).Err()
}

func (c *redisTokenCache) Get(ctx context.Context, key string) ([]byte, error) {
	bs, err := c.rc.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errCacheMiss
	}
	return bs, err
}

func (c *redisTokenCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rc.Set(ctx, key, value, ttl).Err()
}
