package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyTTL = 24 * time.Hour
	lockRetryInterval = 10 * time.Millisecond
	unlockTimeout     = 2 * time.Second
)

var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end

return 0
`)

type RedisAdapter struct {
	client  *redis.Client
	lockTTL time.Duration
	log     *slog.Logger
}

func NewRedisAdapter(client *redis.Client, lockTTL time.Duration, log *slog.Logger) *RedisAdapter {
	return &RedisAdapter{client: client, lockTTL: lockTTL, log: log}
}

// Lock takes a key-scoped lease that expires after lockTTL if never released.
// Only the holder's token can release it.
func (r *RedisAdapter) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return r.unlockFunc(key, token), nil
}

func (r *RedisAdapter) unlockFunc(key, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if err := r.release(ctx, key, token); err != nil {
			// The lease still expires after lockTTL.
			r.log.Error("release lock failed", slog.String("key", key), slog.Any("error", err))
		}
	}
}

func (r *RedisAdapter) release(ctx context.Context, key, token string) error {
	if err := releaseLockScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
