package resultbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis is a distributed Backend, grounded in itsneelabh-gomind's
// RedisSessionManager connection/ping setup, used for multi-process
// deployments where writers and readers of a result key may be different
// processes (§4.H). Blocking Read uses Redis pub/sub so a reader is woken
// immediately on write rather than polling.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedis connects to redisURL (a redis://... connection string) and
// verifies connectivity with a bounded ping, failing fast at construction
// rather than on first use.
func NewRedis(redisURL, keyPrefix string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("resultbackend: invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("resultbackend: redis connect: %w", err)
	}

	return &Redis{client: client, keyPrefix: keyPrefix}, nil
}

func (r *Redis) valueKey(key string) string   { return r.keyPrefix + "result:" + key }
func (r *Redis) channelKey(key string) string { return r.keyPrefix + "result-ch:" + key }

func (r *Redis) Write(ctx context.Context, key string, value map[string]any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("resultbackend: marshal value: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.valueKey(key), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("resultbackend: setnx: %w", err)
	}
	if !ok {
		existing, err := r.client.Get(ctx, r.valueKey(key)).Bytes()
		if err != nil {
			return fmt.Errorf("resultbackend: read existing: %w", err)
		}
		if string(existing) == string(raw) {
			return nil
		}
		return ErrResultAlreadyWritten
	}

	if err := r.client.Publish(ctx, r.channelKey(key), raw).Err(); err != nil {
		return fmt.Errorf("resultbackend: publish: %w", err)
	}
	return nil
}

func (r *Redis) Read(ctx context.Context, key string, timeout time.Duration) (map[string]any, error) {
	if v, ok, err := r.tryGet(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return v, nil
	}
	if timeout <= 0 {
		return nil, ErrNotFound
	}

	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sub := r.client.Subscribe(subCtx, r.channelKey(key))
	defer sub.Close()

	// Re-check after subscribing to close the race between the initial Get
	// miss and the subscription taking effect.
	if v, ok, err := r.tryGet(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return v, nil
	}

	msg, err := sub.ReceiveMessage(subCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrNotFound
	}

	var value map[string]any
	if err := json.Unmarshal([]byte(msg.Payload), &value); err != nil {
		return nil, fmt.Errorf("resultbackend: unmarshal published value: %w", err)
	}
	return value, nil
}

func (r *Redis) tryGet(ctx context.Context, key string) (map[string]any, bool, error) {
	raw, err := r.client.Get(ctx, r.valueKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("resultbackend: get: %w", err)
	}
	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, fmt.Errorf("resultbackend: unmarshal: %w", err)
	}
	return value, true, nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.valueKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("resultbackend: exists: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.valueKey(key)).Err(); err != nil {
		return fmt.Errorf("resultbackend: delete: %w", err)
	}
	return nil
}
