package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerFIFO(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	require.NoError(t, b.Enqueue(ctx, "split", "a", []byte("1")))
	require.NoError(t, b.Enqueue(ctx, "split", "b", []byte("2")))

	first, err := b.Dequeue(ctx, "split", time.Minute, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "a", first.ID)
	assert.Equal(t, StateActive, first.State)
	assert.Equal(t, []byte("1"), first.Payload)

	second, err := b.Dequeue(ctx, "split", time.Minute, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "b", second.ID)

	empty, err := b.Dequeue(ctx, "split", time.Minute, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestMemoryBrokerCompleteAndHistory(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	require.NoError(t, b.Enqueue(ctx, "split", "a", nil))
	_, err := b.Dequeue(ctx, "split", time.Minute, 10*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, b.Complete(ctx, "split", "a", []byte(`{"ok":true}`), time.Hour))

	job, err := b.Get(ctx, "split", "a")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, job.State)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, []byte(`{"ok":true}`), job.Result)

	durations, err := b.RecentDurations(ctx, "split", 20)
	require.NoError(t, err)
	assert.Len(t, durations, 1)

	n, err := b.ActiveCount(ctx, "split")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryBrokerRetention(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	require.NoError(t, b.Enqueue(ctx, "split", "a", nil))
	_, err := b.Dequeue(ctx, "split", time.Minute, 10*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, b.Complete(ctx, "split", "a", nil, 10*time.Millisecond))

	time.Sleep(30 * time.Millisecond)
	_, err = b.Get(ctx, "split", "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBrokerRemoveWaitingOnly(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	require.NoError(t, b.Enqueue(ctx, "split", "a", nil))
	removed, err := b.Remove(ctx, "split", "a")
	require.NoError(t, err)
	assert.True(t, removed)

	require.NoError(t, b.Enqueue(ctx, "split", "b", nil))
	_, err = b.Dequeue(ctx, "split", time.Minute, 10*time.Millisecond)
	require.NoError(t, err)
	removed, err = b.Remove(ctx, "split", "b")
	require.NoError(t, err)
	assert.False(t, removed, "active jobs cannot be removed")
}

func TestMemoryBrokerCancelFlag(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	require.NoError(t, b.Enqueue(ctx, "split", "a", nil))
	cancelled, err := b.Cancelled(ctx, "split", "a")
	require.NoError(t, err)
	assert.False(t, cancelled)

	require.NoError(t, b.Cancel(ctx, "split", "a"))
	cancelled, err = b.Cancelled(ctx, "split", "a")
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestMemoryBrokerWaitingRank(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, b.Enqueue(ctx, "split", id, nil))
	}

	rank, total, err := b.WaitingRank(ctx, "split", "c")
	require.NoError(t, err)
	assert.Equal(t, 2, rank)
	assert.Equal(t, 3, total)

	rank, _, err = b.WaitingRank(ctx, "split", "missing")
	require.NoError(t, err)
	assert.Equal(t, -1, rank)
}

func TestMemoryBrokerStallRecovery(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	require.NoError(t, b.Enqueue(ctx, "split", "a", nil))
	_, err := b.Dequeue(ctx, "split", time.Minute, 10*time.Millisecond)
	require.NoError(t, err)

	// Nothing stalls while the lock holds.
	stalled, err := b.ReapStalled(ctx, "split", time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stalled)

	b.ExpireLock("split", "a")
	stalled, err = b.ReapStalled(ctx, "split", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, stalled)

	job, err := b.Get(ctx, "split", "a")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, job.State)
	assert.Equal(t, "job stalled", job.Error)
}

func TestMemoryBrokerClean(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	require.NoError(t, b.Enqueue(ctx, "split", "a", nil))
	require.NoError(t, b.Enqueue(ctx, "split", "b", nil))
	_, err := b.Dequeue(ctx, "split", time.Minute, 10*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, b.Fail(ctx, "split", "a", "boom", time.Hour))

	n, err := b.Clean(ctx, "split", StateFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = b.Get(ctx, "split", "a")
	assert.ErrorIs(t, err, ErrNotFound)

	// The waiting job is untouched.
	job, err := b.Get(ctx, "split", "b")
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, job.State)
}

func TestMemoryBrokerRestartSignal(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	requested, err := b.RestartRequested(ctx)
	require.NoError(t, err)
	assert.False(t, requested)

	require.NoError(t, b.SignalRestart(ctx))
	requested, err = b.RestartRequested(ctx)
	require.NoError(t, err)
	assert.True(t, requested)
}
