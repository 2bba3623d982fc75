package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"PodcastNotifier/internal/logging"
	"PodcastNotifier/internal/ports"
)

const keyPrefix = "podcastnotifier:lock:"

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker coordinates job runs across processes.
type RedisLocker struct {
	client *redis.Client
	logger *slog.Logger
}

var _ ports.Locker = (*RedisLocker)(nil)

// NewRedisLocker connects using a redis:// URL.
func NewRedisLocker(rawURL string, logger *slog.Logger) (*RedisLocker, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &RedisLocker{client: redis.NewClient(opts), logger: logger}, nil
}

// Ping verifies connectivity.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// TryLock acquires key for ttl without blocking.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{keyPrefix + key}, token).Err(); err != nil {
			l.logger.Warn("release lock failed", "key", key, "error", err)
		}
	}
	return release, true, nil
}

// Close releases the connection pool.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
