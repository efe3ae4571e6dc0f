// Copyright 2025 Nhat-Nguyen Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package locking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aboba/modules/clock"

	"github.com/redis/rueidis/rueidislock"
)

type TaskFunc func(ctx context.Context) error

// LockConfiguration bounds one guarded run.
//
//   - Name          : lock name, prefixed by the executor ("media.reap-leases")
//   - LockAtMostFor : deadline of the task context
//   - LockAtLeastFor: the lock stays held this long after the task starts,
//     so a fast run on one node does not let another node run right behind it
type LockConfiguration struct {
	Name           string
	LockAtMostFor  time.Duration
	LockAtLeastFor time.Duration
}

var (
	// ErrLockNotAcquired means another node holds the lock; the run is skipped.
	ErrLockNotAcquired      = errors.New("locking: lock not acquired")
	ErrInvalidConfiguration = errors.New("locking: invalid lock configuration")
)

// Locker is the part of rueidislock.Locker the executor uses.
type Locker interface {
	TryWithContext(ctx context.Context, name string) (context.Context, context.CancelFunc, error)
}

var _ Locker = (rueidislock.Locker)(nil)

// LockingTaskExecutor runs tasks under a try-once distributed lock: when
// the lock is busy the run is skipped, never queued.
type LockingTaskExecutor struct {
	locker     Locker
	logger     *slog.Logger
	namePrefix string
	clock      clock.Clock
}

type Option func(*LockingTaskExecutor)

func WithLogger(l *slog.Logger) Option {
	return func(e *LockingTaskExecutor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithNamePrefix prefixes every lock name, e.g. "aboba:" + "media.reap-leases".
func WithNamePrefix(prefix string) Option {
	return func(e *LockingTaskExecutor) {
		e.namePrefix = prefix
	}
}

func WithClock(c clock.Clock) Option {
	return func(e *LockingTaskExecutor) {
		if c != nil {
			e.clock = c
		}
	}
}

func NewLockingTaskExecutor(locker Locker, opts ...Option) *LockingTaskExecutor {
	e := &LockingTaskExecutor{
		locker: locker,
		logger: slog.Default(),
		clock:  clock.RealClockProvider(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Execute runs task if the lock named by cfg is free and returns the task's
// error. The lock is released when Execute returns, and not before
// LockAtLeastFor has passed unless ctx or the lock itself ends first.
func (e *LockingTaskExecutor) Execute(ctx context.Context, cfg LockConfiguration, task TaskFunc) error {
	if task == nil {
		return errors.New("locking: task must not be nil")
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}
	name := e.lockName(cfg.Name)
	log := e.logger.With(slog.String("lock.name", name))

	lockCtx, release, err := e.acquire(ctx, name)
	if err != nil {
		if errors.Is(err, ErrLockNotAcquired) {
			log.DebugContext(ctx, "locking: held by another node")
		}
		return err
	}
	defer release()

	var (
		taskCtx context.Context
		cancel  context.CancelFunc
	)
	if cfg.LockAtMostFor > 0 {
		taskCtx, cancel = context.WithTimeout(lockCtx, cfg.LockAtMostFor)
	} else {
		taskCtx, cancel = context.WithCancel(lockCtx)
	}
	defer cancel()

	start := e.clock.Now()
	err = task(taskCtx)
	log.DebugContext(ctx, "locking: task finished",
		slog.Duration("task.duration", e.clock.Now().Sub(start)),
		slog.Any("task.error", err),
	)

	e.holdUntil(ctx, lockCtx, start.Add(cfg.LockAtLeastFor))
	return err
}

func (e *LockingTaskExecutor) acquire(ctx context.Context, name string) (context.Context, context.CancelFunc, error) {
	lockCtx, release, err := e.locker.TryWithContext(ctx, name)
	switch {
	case err == nil:
		return lockCtx, release, nil
	case errors.Is(err, rueidislock.ErrNotLocked):
		return nil, nil, ErrLockNotAcquired
	case errors.Is(err, rueidislock.ErrLockerClosed):
		return nil, nil, fmt.Errorf("locking: locker closed acquiring %q: %w", name, err)
	default:
		return nil, nil, fmt.Errorf("locking: acquire %q: %w", name, err)
	}
}

// holdUntil blocks until deadline, ctx is done or the lock is lost.
func (e *LockingTaskExecutor) holdUntil(ctx, lockCtx context.Context, deadline time.Time) {
	wait := deadline.Sub(e.clock.Now())
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-lockCtx.Done():
	}
}

func (e *LockingTaskExecutor) lockName(base string) string {
	return e.namePrefix + base
}

func validateConfig(cfg LockConfiguration) error {
	switch {
	case cfg.Name == "":
		return fmt.Errorf("%w: lock name must not be empty", ErrInvalidConfiguration)
	case cfg.LockAtMostFor < 0, cfg.LockAtLeastFor < 0:
		return fmt.Errorf("%w: lock durations must not be negative", ErrInvalidConfiguration)
	case cfg.LockAtMostFor > 0 && cfg.LockAtLeastFor > cfg.LockAtMostFor:
		return fmt.Errorf("%w: lockAtLeastFor (%s) > lockAtMostFor (%s)",
			ErrInvalidConfiguration, cfg.LockAtLeastFor, cfg.LockAtMostFor)
	}
	return nil
}

// Every runs Execute on each tick of interval until ctx is done. Failures are
// logged; a lock held elsewhere is skipped silently.
func (e *LockingTaskExecutor) Every(ctx context.Context, interval time.Duration, cfg LockConfiguration, task TaskFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := e.Execute(ctx, cfg, task)
		switch {
		case err == nil, errors.Is(err, ErrLockNotAcquired):
		case ctx.Err() != nil:
			return
		default:
			e.logger.ErrorContext(ctx, "locking: scheduled task failed",
				slog.String("lock.name", e.lockName(cfg.Name)),
				slog.Any("error", err),
			)
		}
	}
}
