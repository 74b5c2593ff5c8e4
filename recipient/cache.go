package recipient

import (
	"context"
	"time"

	"inviqa/notification-relay/config"
	"inviqa/notification-relay/log"
	"inviqa/notification-relay/notification"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "notification-relay:recipient:"
	known     = "1"
	unknown   = "0"
)

type Directory interface {
	Exists(ctx context.Context, token string) (bool, error)
	Resolve(ctx context.Context, token string, ch notification.Channel) (string, error)
}

type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedDirectory remembers whether tokens exist so that enqueueing large
// batches does not hit the users table once per recipient. Cache failures
// fall through to the wrapped directory.
type CachedDirectory struct {
	next   Directory
	client cacheClient
	ttl    time.Duration
}

func NewCachedDirectory(next Directory, client cacheClient, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{next: next, client: client, ttl: ttl}
}

func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func (c *CachedDirectory) Exists(ctx context.Context, token string) (bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+token).Result()
	switch {
	case err == nil:
		return val == known, nil
	case err != redis.Nil:
		log.Logger.WithError(err).Warn("recipient cache lookup failed")
	}

	ok, err := c.next.Exists(ctx, token)
	if err != nil {
		return false, err
	}

	val = unknown
	if ok {
		val = known
	}
	if err := c.client.Set(ctx, keyPrefix+token, val, c.ttl).Err(); err != nil {
		log.Logger.WithError(err).Warn("unable to cache recipient lookup")
	}

	return ok, nil
}

// Resolve is not cached so that contact details are always current.
func (c *CachedDirectory) Resolve(ctx context.Context, token string, ch notification.Channel) (string, error) {
	return c.next.Resolve(ctx, token, ch)
}
