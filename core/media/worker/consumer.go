// Copyright 2025 Nhat-Nguyen Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package worker drains the process-photo job channel.
//
// One feeder goroutine dequeues under a rate limit and hands deliveries to a
// fixed pool over an unbuffered channel, so a worker holds at most
// Concurrency+1 leases at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aboba/core/media/adapters/queue"
	"aboba/core/media/domain"
	"aboba/modules/jobs"
	"aboba/modules/telemetry"
	workerpool "aboba/modules/worker"

	"golang.org/x/time/rate"
)

type (
	Config struct {
		Concurrency   int           `env:"CONCURRENCY"     envDefault:"4"`
		DequeueWait   time.Duration `env:"DEQUEUE_WAIT"    envDefault:"5s"`
		JobTimeout    time.Duration `env:"JOB_TIMEOUT"     envDefault:"2m"`
		ReapInterval  time.Duration `env:"REAP_INTERVAL"   envDefault:"30s"`
		JobsPerSecond float64       `env:"JOBS_PER_SECOND" envDefault:"20"`
		JPEGQuality   int           `env:"JPEG_QUALITY"    envDefault:"85"`
	}

	// Processor is satisfied by *domain.Processor.
	Processor interface {
		Process(ctx context.Context, job domain.ProcessPhotoJob) error
		Fail(ctx context.Context, job domain.ProcessPhotoJob, cause error) error
	}

	Consumer struct {
		queue     jobs.Queue
		processor Processor
		metrics   *telemetry.WorkerMetrics
		limiter   *rate.Limiter
		logger    *slog.Logger
		cfg       Config
	}

	Option func(*Consumer)
)

func WithMetrics(m *telemetry.WorkerMetrics) Option {
	return func(c *Consumer) {
		c.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		DequeueWait:   5 * time.Second,
		JobTimeout:    2 * time.Minute,
		ReapInterval:  30 * time.Second,
		JobsPerSecond: 20,
		JPEGQuality:   85,
	}
}

func NewConsumer(q jobs.Queue, p Processor, cfg Config, opts ...Option) *Consumer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.DequeueWait <= 0 {
		cfg.DequeueWait = time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultConfig().JobTimeout
	}

	limit := rate.Inf
	if cfg.JobsPerSecond > 0 {
		limit = rate.Limit(cfg.JobsPerSecond)
	}

	c := &Consumer{
		queue:     q,
		processor: p,
		limiter:   rate.NewLimiter(limit, cfg.Concurrency),
		logger:    slog.Default(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Run blocks until ctx is done and every in-flight job has settled.
func (c *Consumer) Run(ctx context.Context) {
	deliveries := make(chan *jobs.Delivery)
	go c.feed(ctx, deliveries)

	c.logger.InfoContext(ctx, "worker started",
		slog.String("queue", queue.Name),
		slog.Int("concurrency", c.cfg.Concurrency),
	)
	workerpool.BlockingPoolWithRecovery(ctx, c.cfg.Concurrency, deliveries, c.Handle, c.onPanic)
	c.logger.InfoContext(ctx, "worker stopped", slog.String("queue", queue.Name))
}

func (c *Consumer) feed(ctx context.Context, out chan<- *jobs.Delivery) {
	defer close(out)

	backoff := time.Second
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}

		d, err := c.queue.Dequeue(ctx, c.cfg.DequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.ErrorContext(ctx, "dequeue failed", slog.Any("error", err), slog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(2*backoff, 30*time.Second)
			continue
		}
		backoff = time.Second
		if d == nil {
			continue
		}

		select {
		case out <- d:
		case <-ctx.Done():
			// the lease runs out and the reaper puts the job back
			return
		}
	}
}

// Handle runs one delivery to completion and settles it on the queue.
//
// Shutdown does not cancel a job already in progress; JobTimeout bounds it.
func (c *Consumer) Handle(parent context.Context, d *jobs.Delivery) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	log := c.logger.With(
		slog.String("job_id", d.ID),
		slog.Int("attempt", d.Attempt),
		slog.Int("max_attempts", d.MaxAttempts),
	)

	job, err := queue.Decode(d)
	if err != nil {
		log.ErrorContext(ctx, "undecodable job, dead-lettering", slog.Any("error", err))
		c.bury(ctx, log, d, err)
		c.record(ctx, telemetry.JobDeadLettered, d, start)
		return
	}
	log = log.With(slog.Int64("photo_id", job.PhotoID))

	err = c.processor.Process(ctx, job)
	switch {
	case err == nil:
		if ackErr := c.queue.Ack(ctx, d); ackErr != nil {
			c.settleError(ctx, log, "ack", ackErr)
		}
		c.record(ctx, telemetry.JobProcessed, d, start)

	case errors.Is(err, domain.ErrPermanent):
		log.ErrorContext(ctx, "permanent processing failure", slog.Any("error", err))
		c.bury(ctx, log, d, err)
		c.fail(ctx, log, job, err)
		c.record(ctx, telemetry.JobDeadLettered, d, start)

	default:
		outcome, nackErr := c.queue.Nack(ctx, d, err)
		if nackErr != nil {
			c.settleError(ctx, log, "nack", nackErr)
			c.record(ctx, telemetry.JobFailed, d, start)
			return
		}
		if outcome == jobs.DeadLettered {
			log.ErrorContext(ctx, "job attempts exhausted", slog.Any("error", err))
			c.fail(ctx, log, job, err)
			c.record(ctx, telemetry.JobDeadLettered, d, start)
			return
		}
		log.WarnContext(ctx, "job attempt failed, requeued", slog.Any("error", err))
		c.record(ctx, telemetry.JobRetried, d, start)
	}
}

// Reap returns expired leases to the queue and fails the photos of jobs that
// ran out of attempts while their lease was held.
func (c *Consumer) Reap(ctx context.Context) error {
	dead, err := c.queue.Reap(ctx)
	for i := range dead {
		d := &dead[i]
		job, decodeErr := queue.Decode(d)
		if decodeErr != nil {
			c.logger.ErrorContext(ctx, "reaped undecodable job", slog.String("job_id", d.ID), slog.Any("error", decodeErr))
			continue
		}
		log := c.logger.With(slog.String("job_id", d.ID), slog.Int64("photo_id", job.PhotoID), slog.Int("attempt", d.Attempt))
		log.ErrorContext(ctx, "job lease expired on its last attempt")
		c.fail(ctx, log, job, errors.New("lease expired"))
		c.record(ctx, telemetry.JobDeadLettered, d, time.Now())
	}
	if err != nil {
		return fmt.Errorf("reap %s: %w", queue.Name, err)
	}
	return nil
}

func (c *Consumer) bury(ctx context.Context, log *slog.Logger, d *jobs.Delivery, cause error) {
	if err := c.queue.Bury(ctx, d, cause); err != nil {
		c.settleError(ctx, log, "bury", err)
	}
}

func (c *Consumer) fail(ctx context.Context, log *slog.Logger, job domain.ProcessPhotoJob, cause error) {
	if err := c.processor.Fail(ctx, job, cause); err != nil {
		log.ErrorContext(ctx, "recording terminal failure failed", slog.Any("error", err))
	}
}

func (c *Consumer) settleError(ctx context.Context, log *slog.Logger, op string, err error) {
	if errors.Is(err, jobs.ErrNotActive) {
		// the reaper already released this lease
		log.WarnContext(ctx, "delivery no longer active", slog.String("op", op))
		return
	}
	log.ErrorContext(ctx, "settling delivery failed", slog.String("op", op), slog.Any("error", err))
}

func (c *Consumer) record(ctx context.Context, outcome string, d *jobs.Delivery, start time.Time) {
	c.metrics.RecordJob(ctx, outcome, d.Attempt, float64(time.Since(start).Microseconds())/1000)
}

func (c *Consumer) onPanic(ctx context.Context, d *jobs.Delivery, recovered error) {
	c.logger.ErrorContext(ctx, "job handler panicked", slog.String("job_id", d.ID), slog.Any("error", recovered))
	ctx = context.WithoutCancel(ctx)
	outcome, err := c.queue.Nack(ctx, d, recovered)
	if err != nil {
		c.settleError(ctx, c.logger, "nack", err)
		return
	}
	if outcome != jobs.DeadLettered {
		return
	}
	if job, err := queue.Decode(d); err == nil {
		c.fail(ctx, c.logger.With(slog.String("job_id", d.ID)), job, recovered)
	}
}
