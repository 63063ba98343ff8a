package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the key only if its value still matches the caller's
// token, so a lock holder never releases a lock that TTL-expired and was
// re-acquired by someone else in the meantime.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// renewScript extends a key's TTL only if its value still matches the
// caller's token.
const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end`

// Redis is a distributed Lock using SET NX PX for acquisition and Lua
// compare-and-delete/compare-and-expire for release/renew, the standard
// single-instance Redis lock recipe.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (r *Redis) key(executionID string) string { return r.keyPrefix + "lock:" + executionID }

func (r *Redis) Acquire(ctx context.Context, executionID string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	ok, err := r.client.SetNX(ctx, r.key(executionID), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("lock: acquire: %w", err)
	}
	if !ok {
		return "", ErrAlreadyLocked
	}
	return token, nil
}

func (r *Redis) Renew(ctx context.Context, executionID, token string, ttl time.Duration) error {
	res, err := r.client.Eval(ctx, renewScript, []string{r.key(executionID)}, token, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("lock: renew: %w", err)
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (r *Redis) Release(ctx context.Context, executionID, token string) error {
	res, err := r.client.Eval(ctx, releaseScript, []string{r.key(executionID)}, token).Result()
	if err != nil {
		return fmt.Errorf("lock: release: %w", err)
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return ErrNotHeld
	}
	return nil
}
