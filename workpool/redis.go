package workpool

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// claimScript atomically pops the oldest queued id, marks it claimed by
// workerID, and records the claim for ReleaseByWorker — one round trip so
// two workers calling Claim concurrently can never receive the same id.
const claimScript = `
local id = redis.call("lpop", KEYS[1])
if not id then
	return nil
end
local itemKey = ARGV[2] .. id
redis.call("hset", itemKey, "claimed_by", ARGV[1])
redis.call("sadd", KEYS[2], id)
return id`

// failScript increments attempts and either poisons the item or re-queues
// it, atomically with clearing its claim.
const failScript = `
local itemKey = ARGV[1]
local attempts = redis.call("hincrby", itemKey, "attempts", 1)
local maxRetries = tonumber(redis.call("hget", itemKey, "max_retries"))
local workerID = redis.call("hget", itemKey, "claimed_by")
redis.call("hset", itemKey, "claimed_by", "")
if workerID and workerID ~= "" then
	redis.call("srem", KEYS[2] .. workerID, ARGV[2])
end
if attempts >= maxRetries then
	redis.call("hset", itemKey, "poisoned", "1")
	return 1
end
redis.call("rpush", KEYS[1], ARGV[2])
return 0`

// Redis is a distributed WorkPool using a Redis list as the claimable
// queue, a hash per item for metadata, and a per-worker set for
// ReleaseByWorker, the same client/key-prefix convention as lock.Redis and
// persistence.Redis.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (r *Redis) queueKey() string            { return r.keyPrefix + "workpool:queue" }
func (r *Redis) itemKey(id string) string    { return r.keyPrefix + "workpool:item:" + id }
func (r *Redis) claimedKey(worker string) string { return r.keyPrefix + "workpool:claimed:" + worker }
func (r *Redis) claimedPrefix() string       { return r.keyPrefix + "workpool:claimed:" }

func (r *Redis) Push(ctx context.Context, payload map[string]any, maxRetries int) (string, error) {
	id := uuid.NewString()
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("workpool: marshal payload: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.itemKey(id), map[string]any{
		"payload":     raw,
		"attempts":    0,
		"max_retries": maxRetries,
		"poisoned":    0,
		"claimed_by":  "",
	})
	pipe.RPush(ctx, r.queueKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("workpool: push: %w", err)
	}
	return id, nil
}

func (r *Redis) Claim(ctx context.Context, workerID string) (*Item, error) {
	res, err := r.client.Eval(ctx, claimScript, []string{r.queueKey(), r.claimedKey(workerID)}, workerID, r.keyPrefix+"workpool:item:").Result()
	if err == redis.Nil {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("workpool: claim: %w", err)
	}
	if res == nil {
		return nil, ErrEmpty
	}
	id, _ := res.(string)
	if id == "" {
		return nil, ErrEmpty
	}

	vals, err := r.client.HGetAll(ctx, r.itemKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("workpool: load claimed item: %w", err)
	}
	item := &Item{ID: id, ClaimedBy: workerID}
	if payload, ok := vals["payload"]; ok {
		_ = json.Unmarshal([]byte(payload), &item.Payload)
	}
	if v, ok := vals["attempts"]; ok {
		item.Attempts, _ = strconv.Atoi(v)
	}
	if v, ok := vals["max_retries"]; ok {
		item.MaxRetries, _ = strconv.Atoi(v)
	}
	return item, nil
}

func (r *Redis) Complete(ctx context.Context, id string, result map[string]any) error {
	vals, err := r.client.HGetAll(ctx, r.itemKey(id)).Result()
	if err != nil {
		return fmt.Errorf("workpool: complete: %w", err)
	}
	if len(vals) == 0 {
		return ErrNotFound
	}
	pipe := r.client.TxPipeline()
	if worker := vals["claimed_by"]; worker != "" {
		pipe.SRem(ctx, r.claimedKey(worker), id)
	}
	pipe.Del(ctx, r.itemKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("workpool: complete: %w", err)
	}
	return nil
}

func (r *Redis) Fail(ctx context.Context, id string, cause error) error {
	exists, err := r.client.Exists(ctx, r.itemKey(id)).Result()
	if err != nil {
		return fmt.Errorf("workpool: fail: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	if _, err := r.client.Eval(ctx, failScript, []string{r.queueKey(), r.claimedPrefix()}, r.itemKey(id), id).Result(); err != nil {
		return fmt.Errorf("workpool: fail: %w", err)
	}
	return nil
}

func (r *Redis) Size(ctx context.Context) (int, error) {
	n, err := r.client.LLen(ctx, r.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("workpool: size: %w", err)
	}
	return int(n), nil
}

func (r *Redis) ReleaseByWorker(ctx context.Context, workerID string) (int, error) {
	ids, err := r.client.SMembers(ctx, r.claimedKey(workerID)).Result()
	if err != nil {
		return 0, fmt.Errorf("workpool: release: %w", err)
	}
	released := 0
	for _, id := range ids {
		poisoned, err := r.client.HGet(ctx, r.itemKey(id), "poisoned").Result()
		if err != nil && err != redis.Nil {
			continue
		}
		pipe := r.client.TxPipeline()
		pipe.HSet(ctx, r.itemKey(id), "claimed_by", "")
		pipe.SRem(ctx, r.claimedKey(workerID), id)
		if poisoned != "1" {
			pipe.RPush(ctx, r.queueKey(), id)
		}
		if _, err := pipe.Exec(ctx); err == nil {
			released++
		}
	}
	return released, nil
}
