package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every broker key so multiple deployments can
// share one Redis server.
const keyPrefix = "chisel"

// restartKey carries the worker restart signal.
const restartKey = keyPrefix + ":worker:restart"

// restartTTL bounds how long a restart signal lingers.
const restartTTL = 60 * time.Second

// historyLen caps the completion history used for wait estimates.
const historyLen = 20

// RedisBroker implements Broker on a Redis server.
//
// Key layout per queue q:
//
//	chisel:q:{q}:waiting   list of job ids, newest at head
//	chisel:q:{q}:active    list of job ids being processed
//	chisel:q:{q}:job:{id}  hash with payload, state, timestamps, progress
//	chisel:q:{q}:lock:{id} worker lock, expires unless renewed
//	chisel:q:{q}:history   list of "processedMs finishedMs" pairs
type RedisBroker struct {
	rdb redis.UniversalClient
}

var _ Broker = (*RedisBroker)(nil)

// NewRedis wraps an existing client.
func NewRedis(rdb redis.UniversalClient) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

// DialRedis connects to the broker at the given URL
// (redis://host:port/db).
func DialRedis(ctx context.Context, url string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("queue: redis ping: %w", err)
	}
	return NewRedis(rdb), nil
}

func qkey(queue, part string) string {
	return keyPrefix + ":q:" + queue + ":" + part
}

func jobKey(queue, id string) string  { return qkey(queue, "job:"+id) }
func lockKey(queue, id string) string { return qkey(queue, "lock:"+id) }

func (b *RedisBroker) Enqueue(ctx context.Context, queue, id string, payload []byte) error {
	now := time.Now()
	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(queue, id),
		"payload", payload,
		"state", string(StateWaiting),
		"createdAt", now.UnixMilli(),
		"progress", 0,
	)
	pipe.LPush(ctx, qkey(queue, "waiting"), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", id, err)
	}
	return nil
}

func (b *RedisBroker) Dequeue(ctx context.Context, queue string, lockTTL, block time.Duration) (*Job, error) {
	// FIFO: LPush at the head, move from the tail.
	id, err := b.rdb.BLMove(ctx, qkey(queue, "waiting"), qkey(queue, "active"), "RIGHT", "LEFT", block).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}

	now := time.Now()
	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(queue, id),
		"state", string(StateActive),
		"processedAt", now.UnixMilli(),
	)
	pipe.Set(ctx, lockKey(queue, id), "1", lockTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue: activate %s: %w", id, err)
	}
	return b.Get(ctx, queue, id)
}

func (b *RedisBroker) RenewLock(ctx context.Context, queue, id string, ttl time.Duration) error {
	return b.rdb.Expire(ctx, lockKey(queue, id), ttl).Err()
}

func (b *RedisBroker) Complete(ctx context.Context, queue, id string, result []byte, retain time.Duration) error {
	job, err := b.Get(ctx, queue, id)
	if err != nil {
		return err
	}
	now := time.Now()

	pipe := b.rdb.TxPipeline()
	pipe.LRem(ctx, qkey(queue, "active"), 1, id)
	pipe.HSet(ctx, jobKey(queue, id),
		"state", string(StateCompleted),
		"result", result,
		"finishedAt", now.UnixMilli(),
		"progress", 100,
	)
	pipe.Expire(ctx, jobKey(queue, id), retain)
	pipe.Del(ctx, lockKey(queue, id))
	if !job.ProcessedAt.IsZero() {
		entry := fmt.Sprintf("%d %d", job.ProcessedAt.UnixMilli(), now.UnixMilli())
		pipe.LPush(ctx, qkey(queue, "history"), entry)
		pipe.LTrim(ctx, qkey(queue, "history"), 0, historyLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: complete %s: %w", id, err)
	}
	return nil
}

func (b *RedisBroker) Fail(ctx context.Context, queue, id, reason string, retain time.Duration) error {
	pipe := b.rdb.TxPipeline()
	pipe.LRem(ctx, qkey(queue, "active"), 1, id)
	pipe.LRem(ctx, qkey(queue, "waiting"), 1, id)
	pipe.HSet(ctx, jobKey(queue, id),
		"state", string(StateFailed),
		"error", reason,
		"finishedAt", time.Now().UnixMilli(),
	)
	pipe.Expire(ctx, jobKey(queue, id), retain)
	pipe.Del(ctx, lockKey(queue, id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: fail %s: %w", id, err)
	}
	return nil
}

func (b *RedisBroker) Get(ctx context.Context, queue, id string) (*Job, error) {
	fields, err := b.rdb.HGetAll(ctx, jobKey(queue, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: get %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	job := &Job{ID: id, Queue: queue}
	job.Payload = []byte(fields["payload"])
	job.State = State(fields["state"])
	job.Error = fields["error"]
	job.Result = []byte(fields["result"])
	job.Cancelled = fields["cancelled"] == "1"
	job.ProgressMessage = fields["progressMessage"]
	if v, err := strconv.Atoi(fields["progress"]); err == nil {
		job.Progress = v
	}
	job.CreatedAt = parseMilli(fields["createdAt"])
	job.ProcessedAt = parseMilli(fields["processedAt"])
	job.FinishedAt = parseMilli(fields["finishedAt"])
	return job, nil
}

func (b *RedisBroker) Remove(ctx context.Context, queue, id string) (bool, error) {
	removed, err := b.rdb.LRem(ctx, qkey(queue, "waiting"), 1, id).Result()
	if err != nil {
		return false, fmt.Errorf("queue: remove %s: %w", id, err)
	}
	if removed == 0 {
		return false, nil
	}
	if err := b.rdb.Del(ctx, jobKey(queue, id)).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (b *RedisBroker) Cancel(ctx context.Context, queue, id string) error {
	return b.rdb.HSet(ctx, jobKey(queue, id), "cancelled", "1").Err()
}

func (b *RedisBroker) Cancelled(ctx context.Context, queue, id string) (bool, error) {
	v, err := b.rdb.HGet(ctx, jobKey(queue, id), "cancelled").Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

func (b *RedisBroker) SetProgress(ctx context.Context, queue, id string, percent int, message string) error {
	return b.rdb.HSet(ctx, jobKey(queue, id),
		"progress", percent,
		"progressMessage", message,
	).Err()
}

func (b *RedisBroker) WaitingRank(ctx context.Context, queue, id string) (int, int, error) {
	ids, err := b.rdb.LRange(ctx, qkey(queue, "waiting"), 0, -1).Result()
	if err != nil {
		return -1, 0, err
	}
	// The list head is the newest submission; rank counts from the tail.
	rank := -1
	for i, v := range ids {
		if v == id {
			rank = len(ids) - 1 - i
			break
		}
	}
	return rank, len(ids), nil
}

func (b *RedisBroker) ActiveCount(ctx context.Context, queue string) (int, error) {
	n, err := b.rdb.LLen(ctx, qkey(queue, "active")).Result()
	return int(n), err
}

func (b *RedisBroker) RecentDurations(ctx context.Context, queue string, n int) ([]time.Duration, error) {
	entries, err := b.rdb.LRange(ctx, qkey(queue, "history"), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	var out []time.Duration
	for _, e := range entries {
		parts := strings.Fields(e)
		if len(parts) != 2 {
			continue
		}
		start, err1 := strconv.ParseInt(parts[0], 10, 64)
		end, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 != nil || err2 != nil || end < start {
			continue
		}
		out = append(out, time.Duration(end-start)*time.Millisecond)
	}
	return out, nil
}

func (b *RedisBroker) ReapStalled(ctx context.Context, queue string, retainFailed time.Duration) ([]string, error) {
	ids, err := b.rdb.LRange(ctx, qkey(queue, "active"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var stalled []string
	for _, id := range ids {
		exists, err := b.rdb.Exists(ctx, lockKey(queue, id)).Result()
		if err != nil {
			return stalled, err
		}
		if exists == 0 {
			if err := b.Fail(ctx, queue, id, "job stalled", retainFailed); err != nil {
				return stalled, err
			}
			stalled = append(stalled, id)
		}
	}
	return stalled, nil
}

func (b *RedisBroker) Clean(ctx context.Context, queue string, state State) (int, error) {
	var cursor uint64
	removed := 0
	pattern := qkey(queue, "job:*")
	for {
		keys, next, err := b.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, err
		}
		for _, key := range keys {
			s, err := b.rdb.HGet(ctx, key, "state").Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return removed, err
			}
			if State(s) != state {
				continue
			}
			id := key[strings.LastIndex(key, ":")+1:]
			pipe := b.rdb.TxPipeline()
			pipe.LRem(ctx, qkey(queue, "waiting"), 1, id)
			pipe.LRem(ctx, qkey(queue, "active"), 1, id)
			pipe.Del(ctx, key, lockKey(queue, id))
			if _, err := pipe.Exec(ctx); err != nil {
				return removed, err
			}
			removed++
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (b *RedisBroker) SignalRestart(ctx context.Context) error {
	return b.rdb.Set(ctx, restartKey, "1", restartTTL).Err()
}

func (b *RedisBroker) RestartRequested(ctx context.Context) (bool, error) {
	n, err := b.rdb.Exists(ctx, restartKey).Result()
	return n > 0, err
}

func parseMilli(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
