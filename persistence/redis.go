package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/flatagents/flatagents/machine"
)

// Redis persists snapshots as individual keys plus an index set, the same
// client setup and key-prefix convention as resultbackend.Redis.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (r *Redis) snapKey(id machine.ExecutionId) string { return r.keyPrefix + "snapshot:" + string(id) }
func (r *Redis) indexKey() string                      { return r.keyPrefix + "snapshot-index" }

func (r *Redis) Save(ctx context.Context, snap *machine.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.snapKey(snap.ExecutionId), raw, 0)
	pipe.SAdd(ctx, r.indexKey(), string(snap.ExecutionId))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persistence: save snapshot: %w", err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, executionID machine.ExecutionId) (*machine.Snapshot, error) {
	raw, err := r.client.Get(ctx, r.snapKey(executionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: load snapshot: %w", err)
	}
	var snap machine.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *Redis) Delete(ctx context.Context, executionID machine.ExecutionId) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.snapKey(executionID))
	pipe.SRem(ctx, r.indexKey(), string(executionID))
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) List(ctx context.Context) ([]machine.ExecutionId, error) {
	members, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("persistence: list snapshots: %w", err)
	}
	ids := make([]machine.ExecutionId, len(members))
	for i, m := range members {
		ids[i] = machine.ExecutionId(m)
	}
	return ids, nil
}
