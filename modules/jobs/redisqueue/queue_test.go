package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"aboba/modules/clock"
	"aboba/modules/jobs"

	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLease = time.Minute

// newTestQueue talks to the Redis at REDIS_ADDR. Every test gets its own
// queue name, and its keys are dropped on cleanup.
func newTestQueue(t *testing.T) (*Queue, rueidis.Client, *clock.Manual) {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		DisableCache: true,
	})
	require.NoError(t, err)

	clk := clock.NewManual(time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC))
	name := fmt.Sprintf("test.%s.%d", strings.ReplaceAll(t.Name(), "/", "."), time.Now().UnixNano())
	q, err := New(client, name, WithLease(testLease), WithClock(clk))
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx := context.Background()
		keys, err := client.Do(ctx, client.B().Keys().Pattern("jobs:{"+name+"}:*").Build()).AsStrSlice()
		if err == nil && len(keys) > 0 {
			_ = client.Do(ctx, client.B().Del().Key(keys...).Build()).Error()
		}
		client.Close()
	})
	return q, client, clk
}

func listIDs(t *testing.T, client rueidis.Client, key string) []string {
	t.Helper()
	ids, err := client.Do(context.Background(), client.B().Lrange().Key(key).Start(0).Stop(-1).Build()).AsStrSlice()
	require.NoError(t, err)
	return ids
}

func mustDequeue(t *testing.T, q *Queue) *jobs.Delivery {
	t.Helper()
	d, err := q.Dequeue(context.Background(), 200*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

// moveOnly does what Dequeue's BLMOVE does, without the claim that follows it.
func moveOnly(t *testing.T, q *Queue, client rueidis.Client) string {
	t.Helper()
	id, err := client.Do(context.Background(), client.B().Lmove().
		Source(q.readyKey()).
		Destination(q.activeKey()).
		Right().
		Left().
		Build()).ToString()
	require.NoError(t, err)
	return id
}

func TestQueue_EnqueueIsIdempotentWhileLive(t *testing.T) {
	q, client, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "photo:7", []byte(`{"photoId":7}`), jobs.EnqueueOptions{MaxAttempts: 3}))
	require.NoError(t, q.Enqueue(ctx, "photo:7", []byte(`{"photoId":8}`), jobs.EnqueueOptions{MaxAttempts: 3}))
	assert.Equal(t, []string{"photo:7"}, listIDs(t, client, q.readyKey()))

	d := mustDequeue(t, q)
	assert.Equal(t, "photo:7", d.ID)
	assert.Equal(t, []byte(`{"photoId":7}`), d.Payload)
	assert.Equal(t, 1, d.Attempt)
	assert.Equal(t, 3, d.MaxAttempts)

	// still live while leased
	require.NoError(t, q.Enqueue(ctx, "photo:7", nil, jobs.EnqueueOptions{MaxAttempts: 3}))
	assert.Empty(t, listIDs(t, client, q.readyKey()))

	require.NoError(t, q.Ack(ctx, d))
	assert.Empty(t, listIDs(t, client, q.activeKey()))

	require.NoError(t, q.Enqueue(ctx, "photo:7", []byte(`{"photoId":7}`), jobs.EnqueueOptions{MaxAttempts: 3}))
	assert.Equal(t, []string{"photo:7"}, listIDs(t, client, q.readyKey()))
}

func TestQueue_DequeueTimesOut(t *testing.T) {
	q, _, _ := newTestQueue(t)

	d, err := q.Dequeue(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestQueue_NackDeadLettersAtMaxAttempts(t *testing.T) {
	q, client, _ := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "photo:1", []byte("p"), jobs.EnqueueOptions{MaxAttempts: 2}))

	d := mustDequeue(t, q)
	outcome, err := q.Nack(ctx, d, errors.New("blob timeout"))
	require.NoError(t, err)
	assert.Equal(t, jobs.Requeued, outcome)

	d = mustDequeue(t, q)
	assert.Equal(t, 2, d.Attempt)
	outcome, err = q.Nack(ctx, d, errors.New("blob timeout"))
	require.NoError(t, err)
	assert.Equal(t, jobs.DeadLettered, outcome)

	assert.Equal(t, []string{"photo:1"}, listIDs(t, client, q.deadKey()))
	assert.Empty(t, listIDs(t, client, q.readyKey()))
	assert.Empty(t, listIDs(t, client, q.activeKey()))

	lastErr, err := client.Do(ctx, client.B().Hget().Key(q.jobKey("photo:1")).Field("last_error").Build()).ToString()
	require.NoError(t, err)
	assert.Equal(t, "blob timeout", lastErr)
}

func TestQueue_BuryDeadLettersImmediately(t *testing.T) {
	q, client, _ := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "photo:2", []byte("p"), jobs.EnqueueOptions{MaxAttempts: 3}))

	d := mustDequeue(t, q)
	require.NoError(t, q.Bury(ctx, d, errors.New("original missing")))

	assert.Equal(t, []string{"photo:2"}, listIDs(t, client, q.deadKey()))
	assert.Empty(t, listIDs(t, client, q.readyKey()))
	assert.ErrorIs(t, q.Ack(ctx, d), jobs.ErrNotActive)
	assert.ErrorIs(t, q.Bury(ctx, d, nil), jobs.ErrNotActive)
}

func TestQueue_ReapKeepsValidLeases(t *testing.T) {
	q, client, clk := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "photo:3", []byte("p"), jobs.EnqueueOptions{MaxAttempts: 3}))
	d := mustDequeue(t, q)

	clk.Advance(testLease - time.Second)
	res, err := q.retry(ctx, d.ID, "lease expired", false, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(retryStillLease), res)

	dead, err := q.Reap(ctx)
	require.NoError(t, err)
	assert.Empty(t, dead)
	assert.Equal(t, []string{"photo:3"}, listIDs(t, client, q.activeKey()))
	require.NoError(t, q.Ack(ctx, d))
}

func TestQueue_ReapReleasesExpiredLease(t *testing.T) {
	q, client, clk := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "photo:4", []byte("p"), jobs.EnqueueOptions{MaxAttempts: 3}))
	stale := mustDequeue(t, q)

	clk.Advance(testLease + time.Second)
	dead, err := q.Reap(ctx)
	require.NoError(t, err)
	assert.Empty(t, dead)
	assert.Equal(t, []string{"photo:4"}, listIDs(t, client, q.readyKey()))

	// the consumer that lost its lease can no longer settle the job
	assert.ErrorIs(t, q.Ack(ctx, stale), jobs.ErrNotActive)
	_, err = q.Nack(ctx, stale, errors.New("late"))
	assert.ErrorIs(t, err, jobs.ErrNotActive)

	again := mustDequeue(t, q)
	assert.Equal(t, 2, again.Attempt)
	require.NoError(t, q.Ack(ctx, again))
}

func TestQueue_ReapDeadLettersExhaustedLease(t *testing.T) {
	q, client, clk := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "photo:5", []byte(`{"photoId":5}`), jobs.EnqueueOptions{MaxAttempts: 1}))
	mustDequeue(t, q)

	clk.Advance(testLease + time.Second)
	dead, err := q.Reap(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, jobs.Delivery{ID: "photo:5", Payload: []byte(`{"photoId":5}`), Attempt: 1, MaxAttempts: 1}, dead[0])
	assert.Equal(t, []string{"photo:5"}, listIDs(t, client, q.deadKey()))
}

func TestQueue_ReapBetweenMoveAndClaimKeepsJobWithOneConsumer(t *testing.T) {
	q, client, _ := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "photo:6", []byte("p"), jobs.EnqueueOptions{MaxAttempts: 3}))

	id := moveOnly(t, q, client)
	require.Equal(t, "photo:6", id)

	res, err := q.retry(ctx, id, "lease expired", false, q.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(retryStamped), res)

	dead, err := q.Reap(ctx)
	require.NoError(t, err)
	assert.Empty(t, dead)
	assert.Empty(t, listIDs(t, client, q.readyKey()))
	assert.Equal(t, []string{"photo:6"}, listIDs(t, client, q.activeKey()))

	// a second consumer finds nothing to take
	other, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, other)

	d, err := q.claim(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 1, d.Attempt)
	require.NoError(t, q.Ack(ctx, d))
}

func TestQueue_UnclaimedMoveIsReleasedAfterGrace(t *testing.T) {
	q, client, clk := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "photo:8", []byte("p"), jobs.EnqueueOptions{MaxAttempts: 3}))

	// the consumer dies between the move and the claim
	id := moveOnly(t, q, client)

	_, err := q.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, listIDs(t, client, q.activeKey()))

	clk.Advance(testLease + time.Second)
	dead, err := q.Reap(ctx)
	require.NoError(t, err)
	assert.Empty(t, dead)
	assert.Equal(t, []string{id}, listIDs(t, client, q.readyKey()))

	// a claim arriving after the release is refused and does not count an attempt
	late, err := q.claim(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, late)

	d := mustDequeue(t, q)
	assert.Equal(t, id, d.ID)
	assert.Equal(t, 1, d.Attempt)
	require.NoError(t, q.Ack(ctx, d))
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(nil, "media.process_photo")
	assert.Error(t, err)
}
