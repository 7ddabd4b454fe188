// Package runlock provides distributed per-source run locks backed by Redis.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	coreerrors "github.com/lueurxax/book-harvester/internal/core/errors"
)

const (
	defaultPrefix  = "harvester:lock"
	releaseTimeout = 2 * time.Second
)

// releaseScript deletes the key only when it still holds our token, so a lock
// that expired and was taken by another run is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements ports.RunLocker with SET NX PX.
type RedisLocker struct {
	client *redis.Client
	prefix string
	logger *zerolog.Logger
}

// NewRedisLocker connects a locker to the Redis server at addr.
func NewRedisLocker(addr, password, prefix string, logger *zerolog.Logger) (*RedisLocker, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("run lock redis addr is required")
	}

	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &RedisLocker{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
		logger: logger,
	}, nil
}

// Acquire takes the lock for ttl. It returns errors.ErrLockHeld when the key
// is owned by someone else.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("run lock %s: %w: ttl must be positive", key, coreerrors.ErrInvalidInput)
	}

	redisKey := l.prefix + ":" + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("run lock %s: %w", key, err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", coreerrors.ErrLockHeld, key)
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()

		if err := releaseScript.Run(rctx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("failed to release run lock")
		}
	}

	return release, nil
}

// Ping checks that Redis is reachable.
func (l *RedisLocker) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	return nil
}

// Close closes the Redis client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
