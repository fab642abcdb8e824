package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewWithFallback returns a RedisStore when redisURL is set and reachable, and
// a MemoryStore otherwise.
func NewWithFallback(ctx context.Context, redisURL, prefix string, log logrus.FieldLogger) Store {
	if redisURL == "" {
		log.Info("using memory cache")
		return NewMemoryStore()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.WithError(err).Warn("invalid redis url, falling back to memory cache")
		return NewMemoryStore()
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("redis unavailable, falling back to memory cache")
		_ = client.Close()
		return NewMemoryStore()
	}

	log.WithField("addr", opts.Addr).Info("using redis cache")
	return NewRedisStore(client, prefix)
}
