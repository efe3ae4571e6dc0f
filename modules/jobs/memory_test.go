package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"aboba/modules/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dequeue(t *testing.T, q *MemoryQueue) *Delivery {
	t.Helper()
	d, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func TestMemoryQueue_EnqueueIsIdempotentWhileLive(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "photo:1", []byte("a"), EnqueueOptions{MaxAttempts: 3}))
	require.NoError(t, q.Enqueue(ctx, "photo:1", []byte("b"), EnqueueOptions{MaxAttempts: 3}))
	assert.Equal(t, 1, q.Len())

	d := dequeue(t, q)
	assert.Equal(t, "photo:1", d.ID)
	assert.Equal(t, []byte("a"), d.Payload)
	assert.Equal(t, 1, d.Attempt)
	assert.Equal(t, 3, d.MaxAttempts)

	// still live while leased
	require.NoError(t, q.Enqueue(ctx, "photo:1", []byte("c"), EnqueueOptions{MaxAttempts: 3}))
	assert.Equal(t, 0, q.Len())

	require.NoError(t, q.Ack(ctx, d))
	require.NoError(t, q.Enqueue(ctx, "photo:1", []byte("d"), EnqueueOptions{MaxAttempts: 3}))
	assert.Equal(t, 1, q.Len())
}

func TestMemoryQueue_DequeueTimesOut(t *testing.T) {
	q := NewMemoryQueue()
	d, err := q.Dequeue(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestMemoryQueue_DequeueWakesOnEnqueue(t *testing.T) {
	q := NewMemoryQueue()
	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = q.Enqueue(context.Background(), "j", nil, EnqueueOptions{})
	}()
	d, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "j", d.ID)
}

func TestMemoryQueue_DequeueHonoursContext(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryQueue_NackRequeuesUntilExhausted(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "j", nil, EnqueueOptions{MaxAttempts: 3}))

	for attempt := 1; attempt <= 2; attempt++ {
		d := dequeue(t, q)
		assert.Equal(t, attempt, d.Attempt)
		assert.Equal(t, 3, d.MaxAttempts)
		outcome, err := q.Nack(ctx, d, errors.New("transient"))
		require.NoError(t, err)
		assert.Equal(t, Requeued, outcome)
	}

	d := dequeue(t, q)
	assert.Equal(t, 3, d.Attempt)
	outcome, err := q.Nack(ctx, d, errors.New("transient"))
	require.NoError(t, err)
	assert.Equal(t, DeadLettered, outcome)
	assert.Equal(t, []string{"j"}, q.Dead())
	assert.Equal(t, 0, q.Len())
}

func TestMemoryQueue_BuryDeadLettersImmediately(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "j", nil, EnqueueOptions{MaxAttempts: 3}))

	d := dequeue(t, q)
	require.NoError(t, q.Bury(ctx, d, errors.New("permanent")))
	assert.Equal(t, []string{"j"}, q.Dead())

	assert.ErrorIs(t, q.Ack(ctx, d), ErrNotActive)
	_, err := q.Nack(ctx, d, nil)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestMemoryQueue_ReapReleasesExpiredLeases(t *testing.T) {
	c := clock.NewManual(time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC))
	q := NewMemoryQueue(WithMemoryLease(time.Minute), WithMemoryClock(c))
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a", []byte("pa"), EnqueueOptions{MaxAttempts: 2}))

	first := dequeue(t, q)
	dead, err := q.Reap(ctx)
	require.NoError(t, err)
	assert.Empty(t, dead)
	assert.Equal(t, 0, q.Len(), "lease still valid")

	c.Advance(2 * time.Minute)
	dead, err = q.Reap(ctx)
	require.NoError(t, err)
	assert.Empty(t, dead)
	assert.Equal(t, 1, q.Len(), "expired lease goes back to ready")
	assert.ErrorIs(t, q.Ack(ctx, first), ErrNotActive)

	second := dequeue(t, q)
	assert.Equal(t, 2, second.Attempt)
	c.Advance(2 * time.Minute)
	dead, err = q.Reap(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "a", dead[0].ID)
	assert.Equal(t, []byte("pa"), dead[0].Payload)
	assert.Equal(t, []string{"a"}, q.Dead())
}

func TestEnqueueOptions_Attempts(t *testing.T) {
	assert.Equal(t, 1, EnqueueOptions{}.Attempts())
	assert.Equal(t, 3, EnqueueOptions{MaxAttempts: 3}.Attempts())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "requeued", Requeued.String())
	assert.Equal(t, "dead_lettered", DeadLettered.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}
