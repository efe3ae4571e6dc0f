package domain_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	blobmemory "aboba/core/media/adapters/blob/memory"
	"aboba/core/media/adapters/persistence/memory"
	"aboba/core/media/adapters/queue"
	"aboba/core/media/domain"
	"aboba/modules/clock"
	"aboba/modules/jobs"
)

const (
	owner    int64 = 100
	stranger int64 = 200
)

var start = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

// flakyQueue fails enqueues while broken is set.
type flakyQueue struct {
	mu     sync.Mutex
	broken bool
	next   domain.JobQueue
}

func (q *flakyQueue) setBroken(b bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.broken = b
}

func (q *flakyQueue) EnqueueProcessPhoto(ctx context.Context, job domain.ProcessPhotoJob, maxAttempts int) error {
	q.mu.Lock()
	broken := q.broken
	q.mu.Unlock()
	if broken {
		return errors.New("queue unavailable")
	}
	return q.next.EnqueueProcessPhoto(ctx, job, maxAttempts)
}

type fixture struct {
	app   *domain.Application
	store *memory.Store
	blobs *blobmemory.Store
	jobs  *jobs.MemoryQueue
	queue *flakyQueue
	clock *clock.Manual
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := clock.NewManual(start)

	store := memory.NewStore()
	store.AddProfile(1, owner)
	store.AddProfile(2, stranger)

	blobs := blobmemory.NewStore()
	mq := jobs.NewMemoryQueue(jobs.WithMemoryClock(c))
	fq := &flakyQueue{next: queue.NewProcessPhotoQueue(mq)}

	app := domain.NewApp(store, store, store, blobs, fq, domain.WithClock(c))
	return &fixture{app: app, store: store, blobs: blobs, jobs: mq, queue: fq, clock: c}
}

func key(n int) string {
	return fmt.Sprintf("profiles/1/photos/tmp_%06d/orig", n)
}

func hash(n int) string {
	return fmt.Sprintf("%064x", n)
}

func (f *fixture) confirm(t *testing.T, n int) (*domain.PhotoSummary, error) {
	t.Helper()
	return f.app.ConfirmUpload(context.Background(), domain.ConfirmUploadRequest{
		ProfileID:   1,
		CallerID:    owner,
		StorageKey:  key(n),
		ContentHash: hash(n),
		SizeBytes:   2048,
		Mime:        domain.MimeJPEG,
	})
}
