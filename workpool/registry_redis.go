package workpool

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisRegistry is a distributed RegistrationBackend: one Redis hash per
// worker (status, registered_at, last_heartbeat unix seconds) plus a set of
// known worker ids for List, the same client/key-prefix convention as
// lock.Redis and workpool.Redis.
type RedisRegistry struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisRegistry(client *redis.Client, keyPrefix string) *RedisRegistry {
	return &RedisRegistry{client: client, keyPrefix: keyPrefix}
}

func (r *RedisRegistry) workerKey(id string) string { return r.keyPrefix + "worker:" + id }
func (r *RedisRegistry) indexKey() string            { return r.keyPrefix + "workers" }

func (r *RedisRegistry) Register(ctx context.Context, workerID string) error {
	now := time.Now().Unix()
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.workerKey(workerID), map[string]any{
		"status":         string(StatusActive),
		"registered_at":  now,
		"last_heartbeat": now,
	})
	pipe.SAdd(ctx, r.indexKey(), workerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("workpool: register: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Heartbeat(ctx context.Context, workerID string) error {
	exists, err := r.client.Exists(ctx, r.workerKey(workerID)).Result()
	if err != nil {
		return fmt.Errorf("workpool: heartbeat: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return r.client.HSet(ctx, r.workerKey(workerID), "last_heartbeat", time.Now().Unix()).Err()
}

func (r *RedisRegistry) UpdateStatus(ctx context.Context, workerID string, status WorkerStatus) error {
	exists, err := r.client.Exists(ctx, r.workerKey(workerID)).Result()
	if err != nil {
		return fmt.Errorf("workpool: update status: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return r.client.HSet(ctx, r.workerKey(workerID), "status", string(status)).Err()
}

func (r *RedisRegistry) List(ctx context.Context, filter Filter) ([]*Worker, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("workpool: list: %w", err)
	}
	out := make([]*Worker, 0, len(ids))
	for _, id := range ids {
		vals, err := r.client.HGetAll(ctx, r.workerKey(id)).Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		status := WorkerStatus(vals["status"])
		if filter.Status != "" && status != filter.Status {
			continue
		}
		regAt, _ := strconv.ParseInt(vals["registered_at"], 10, 64)
		hb, _ := strconv.ParseInt(vals["last_heartbeat"], 10, 64)
		out = append(out, &Worker{
			ID:            id,
			Status:        status,
			RegisteredAt:  time.Unix(regAt, 0),
			LastHeartbeat: time.Unix(hb, 0),
		})
	}
	return out, nil
}

// MarkStale mirrors MemoryRegistry.MarkStale against Redis-backed state,
// used by Reaper when the registry backend is Redis.
func (r *RedisRegistry) MarkStale(ctx context.Context, staleThreshold time.Duration) ([]string, error) {
	workers, err := r.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-staleThreshold)
	var stale []string
	for _, w := range workers {
		if w.Status == StatusTerminated || w.Status == StatusLost {
			continue
		}
		if w.LastHeartbeat.Before(cutoff) {
			if err := r.UpdateStatus(ctx, w.ID, StatusLost); err == nil {
				stale = append(stale, w.ID)
			}
		}
	}
	return stale, nil
}
