package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBroker is an in-memory Broker for tests. Lock and retention
// expiry are driven by wall-clock time like the Redis implementation,
// but records are reaped lazily.
type MemoryBroker struct {
	mu      sync.Mutex
	jobs    map[string]*memJob // key: queue + "/" + id
	waiting map[string][]string
	active  map[string][]string
	history map[string][]time.Duration
	restart time.Time
}

type memJob struct {
	job     Job
	lockTTL time.Time
	expires time.Time
}

var _ Broker = (*MemoryBroker)(nil)

// NewMemory returns an empty broker.
func NewMemory() *MemoryBroker {
	return &MemoryBroker{
		jobs:    make(map[string]*memJob),
		waiting: make(map[string][]string),
		active:  make(map[string][]string),
		history: make(map[string][]time.Duration),
	}
}

func memKey(queue, id string) string { return queue + "/" + id }

func (b *MemoryBroker) get(queue, id string) (*memJob, bool) {
	j, ok := b.jobs[memKey(queue, id)]
	if !ok {
		return nil, false
	}
	if !j.expires.IsZero() && time.Now().After(j.expires) {
		delete(b.jobs, memKey(queue, id))
		return nil, false
	}
	return j, true
}

func (b *MemoryBroker) Enqueue(ctx context.Context, queue, id string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs[memKey(queue, id)] = &memJob{job: Job{
		ID:        id,
		Queue:     queue,
		Payload:   payload,
		State:     StateWaiting,
		CreatedAt: time.Now(),
	}}
	b.waiting[queue] = append(b.waiting[queue], id)
	return nil
}

func (b *MemoryBroker) Dequeue(ctx context.Context, queue string, lockTTL, block time.Duration) (*Job, error) {
	deadline := time.Now().Add(block)
	for {
		b.mu.Lock()
		if ids := b.waiting[queue]; len(ids) > 0 {
			id := ids[0]
			b.waiting[queue] = ids[1:]
			b.active[queue] = append(b.active[queue], id)
			if j, ok := b.get(queue, id); ok {
				j.job.State = StateActive
				j.job.ProcessedAt = time.Now()
				j.lockTTL = time.Now().Add(lockTTL)
				out := j.job
				b.mu.Unlock()
				return &out, nil
			}
		}
		b.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (b *MemoryBroker) RenewLock(ctx context.Context, queue, id string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if j, ok := b.get(queue, id); ok {
		j.lockTTL = time.Now().Add(ttl)
	}
	return nil
}

func (b *MemoryBroker) Complete(ctx context.Context, queue, id string, result []byte, retain time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.get(queue, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	b.active[queue] = remove(b.active[queue], id)
	j.job.State = StateCompleted
	j.job.Result = result
	j.job.FinishedAt = time.Now()
	j.job.Progress = 100
	j.expires = time.Now().Add(retain)
	if !j.job.ProcessedAt.IsZero() {
		h := append([]time.Duration{j.job.FinishedAt.Sub(j.job.ProcessedAt)}, b.history[queue]...)
		if len(h) > historyLen {
			h = h[:historyLen]
		}
		b.history[queue] = h
	}
	return nil
}

func (b *MemoryBroker) Fail(ctx context.Context, queue, id, reason string, retain time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.get(queue, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	b.active[queue] = remove(b.active[queue], id)
	b.waiting[queue] = remove(b.waiting[queue], id)
	j.job.State = StateFailed
	j.job.Error = reason
	j.job.FinishedAt = time.Now()
	j.expires = time.Now().Add(retain)
	return nil
}

func (b *MemoryBroker) Get(ctx context.Context, queue, id string) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.get(queue, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := j.job
	return &out, nil
}

func (b *MemoryBroker) Remove(ctx context.Context, queue, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	before := len(b.waiting[queue])
	b.waiting[queue] = remove(b.waiting[queue], id)
	if len(b.waiting[queue]) == before {
		return false, nil
	}
	delete(b.jobs, memKey(queue, id))
	return true, nil
}

func (b *MemoryBroker) Cancel(ctx context.Context, queue, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if j, ok := b.get(queue, id); ok {
		j.job.Cancelled = true
	}
	return nil
}

func (b *MemoryBroker) Cancelled(ctx context.Context, queue, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if j, ok := b.get(queue, id); ok {
		return j.job.Cancelled, nil
	}
	return false, nil
}

func (b *MemoryBroker) SetProgress(ctx context.Context, queue, id string, percent int, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if j, ok := b.get(queue, id); ok {
		j.job.Progress = percent
		j.job.ProgressMessage = message
	}
	return nil
}

func (b *MemoryBroker) WaitingRank(ctx context.Context, queue, id string) (int, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := b.waiting[queue]
	rank := -1
	for i, v := range ids {
		if v == id {
			rank = i
			break
		}
	}
	return rank, len(ids), nil
}

func (b *MemoryBroker) ActiveCount(ctx context.Context, queue string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active[queue]), nil
}

func (b *MemoryBroker) RecentDurations(ctx context.Context, queue string, n int) ([]time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.history[queue]
	if len(h) > n {
		h = h[:n]
	}
	out := make([]time.Duration, len(h))
	copy(out, h)
	return out, nil
}

func (b *MemoryBroker) ReapStalled(ctx context.Context, queue string, retainFailed time.Duration) ([]string, error) {
	b.mu.Lock()
	ids := append([]string(nil), b.active[queue]...)
	now := time.Now()
	var stalled []string
	for _, id := range ids {
		if j, ok := b.get(queue, id); ok && now.After(j.lockTTL) {
			stalled = append(stalled, id)
		}
	}
	b.mu.Unlock()

	for _, id := range stalled {
		if err := b.Fail(ctx, queue, id, "job stalled", retainFailed); err != nil {
			return stalled, err
		}
	}
	return stalled, nil
}

func (b *MemoryBroker) Clean(ctx context.Context, queue string, state State) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for key, j := range b.jobs {
		if j.job.Queue != queue || j.job.State != state {
			continue
		}
		delete(b.jobs, key)
		b.waiting[queue] = remove(b.waiting[queue], j.job.ID)
		b.active[queue] = remove(b.active[queue], j.job.ID)
		removed++
	}
	return removed, nil
}

func (b *MemoryBroker) SignalRestart(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.restart = time.Now().Add(restartTTL)
	return nil
}

func (b *MemoryBroker) RestartRequested(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().Before(b.restart), nil
}

// ExpireLock zeroes a job's lock so tests can exercise stall recovery
// without waiting out a real TTL.
func (b *MemoryBroker) ExpireLock(queue, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if j, ok := b.get(queue, id); ok {
		j.lockTTL = time.Time{}
	}
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
