package jobs

import (
	"context"
	"slices"
	"sync"
	"time"

	"aboba/modules/clock"
)

var _ Queue = (*MemoryQueue)(nil)

// MemoryQueue is a process-local Queue for tests and single-process runs.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   map[string]*memoryJob
	ready  []string
	dead   []string
	notify chan struct{}

	lease time.Duration
	clock clock.Clock
}

type memoryJob struct {
	payload     []byte
	attempts    int
	maxAttempts int
	active      bool
	leasedUntil time.Time
	lastError   string
}

type MemoryOption func(*MemoryQueue)

func WithMemoryLease(d time.Duration) MemoryOption {
	return func(q *MemoryQueue) { q.lease = d }
}

func WithMemoryClock(c clock.Clock) MemoryOption {
	return func(q *MemoryQueue) { q.clock = c }
}

func NewMemoryQueue(opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		jobs:   make(map[string]*memoryJob),
		notify: make(chan struct{}, 1),
		lease:  time.Minute,
		clock:  clock.RealClockProvider(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, id string, payload []byte, opts EnqueueOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.jobs[id]; ok {
		return nil
	}
	q.jobs[id] = &memoryJob{
		payload:     slices.Clone(payload),
		maxAttempts: opts.Attempts(),
	}
	q.pushReadyLocked(id)
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		if d := q.claim(); d != nil {
			return d, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) claim() *Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ready) == 0 {
		return nil
	}
	id := q.ready[0]
	q.ready = q.ready[1:]
	j := q.jobs[id]
	j.attempts++
	j.active = true
	j.leasedUntil = q.clock.Now().Add(q.lease)
	return &Delivery{
		ID:          id,
		Payload:     slices.Clone(j.payload),
		Attempt:     j.attempts,
		MaxAttempts: j.maxAttempts,
	}
}

func (q *MemoryQueue) Ack(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[d.ID]
	if !ok || !j.active {
		return ErrNotActive
	}
	delete(q.jobs, d.ID)
	return nil
}

func (q *MemoryQueue) Nack(_ context.Context, d *Delivery, cause error) (Outcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[d.ID]
	if !ok || !j.active {
		return 0, ErrNotActive
	}
	return q.releaseLocked(d.ID, j, errString(cause), false), nil
}

func (q *MemoryQueue) Bury(_ context.Context, d *Delivery, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[d.ID]
	if !ok || !j.active {
		return ErrNotActive
	}
	q.releaseLocked(d.ID, j, errString(cause), true)
	return nil
}

func (q *MemoryQueue) Reap(_ context.Context) ([]Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	var dead []Delivery
	for id, j := range q.jobs {
		if !j.active || now.Before(j.leasedUntil) {
			continue
		}
		if q.releaseLocked(id, j, "lease expired", false) == DeadLettered {
			dead = append(dead, Delivery{ID: id, Payload: slices.Clone(j.payload), Attempt: j.attempts, MaxAttempts: j.maxAttempts})
		}
	}
	return dead, nil
}

// Dead returns the ids of dead-lettered jobs, oldest first.
func (q *MemoryQueue) Dead() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.dead)
}

// Len returns the number of jobs waiting to be claimed.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

func (q *MemoryQueue) releaseLocked(id string, j *memoryJob, reason string, bury bool) Outcome {
	j.active = false
	j.lastError = reason
	if bury || j.attempts >= j.maxAttempts {
		q.dead = append(q.dead, id)
		return DeadLettered
	}
	q.pushReadyLocked(id)
	return Requeued
}

func (q *MemoryQueue) pushReadyLocked(id string) {
	q.ready = append(q.ready, id)
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
