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

// Package redisqueue is a Redis-backed jobs.Queue.
//
// Layout for a queue named q (all keys share the {q} hash tag so the scripts
// stay on one cluster slot):
//
//	jobs:{q}:ready     LIST  ids waiting to be claimed
//	jobs:{q}:active    LIST  ids currently leased
//	jobs:{q}:dead      LIST  dead-lettered ids
//	jobs:{q}:job:<id>  HASH  payload, attempts, max_attempts, leased_until, last_error
package redisqueue

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"aboba/modules/clock"
	"aboba/modules/jobs"

	"github.com/redis/rueidis"
)

var (
	_ jobs.Queue = (*Queue)(nil)

	//go:embed enqueue.lua
	enqueueLua string
	//go:embed claim.lua
	claimLua string
	//go:embed ack.lua
	ackLua string
	//go:embed retry.lua
	retryLua string

	luaEnqueue = rueidis.NewLuaScript(enqueueLua)
	luaClaim   = rueidis.NewLuaScript(claimLua)
	luaAck     = rueidis.NewLuaScript(ackLua)
	luaRetry   = rueidis.NewLuaScript(retryLua)
)

const (
	retryRequeued   = 1
	retryDead       = 0
	retryNotActive  = -1
	retryStillLease = -2
	retryStamped    = -3
)

type Queue struct {
	client rueidis.Client
	name   string
	lease  time.Duration
	clock  clock.Clock
}

type Option func(*Queue)

// WithLease sets how long a claimed job stays invisible to other consumers.
func WithLease(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.lease = d
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		if c != nil {
			q.clock = c
		}
	}
}

func New(client rueidis.Client, name string, opts ...Option) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redisqueue: nil client")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("redisqueue: empty queue name")
	}
	q := &Queue{
		client: client,
		name:   name,
		lease:  5 * time.Minute,
		clock:  clock.RealClockProvider(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q, nil
}

func (q *Queue) readyKey() string  { return "jobs:{" + q.name + "}:ready" }
func (q *Queue) activeKey() string { return "jobs:{" + q.name + "}:active" }
func (q *Queue) deadKey() string   { return "jobs:{" + q.name + "}:dead" }
func (q *Queue) jobKey(id string) string {
	return "jobs:{" + q.name + "}:job:" + id
}

func (q *Queue) Enqueue(ctx context.Context, id string, payload []byte, opts jobs.EnqueueOptions) error {
	err := luaEnqueue.Exec(ctx, q.client,
		[]string{q.jobKey(id), q.readyKey()},
		[]string{id, rueidis.BinaryString(payload), strconv.Itoa(opts.Attempts())},
	).Error()
	if err != nil {
		return fmt.Errorf("redisqueue: enqueue %q: %w", id, err)
	}
	return nil
}

func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*jobs.Delivery, error) {
	cmd := q.client.B().Blmove().
		Source(q.readyKey()).
		Destination(q.activeKey()).
		Right().
		Left().
		Timeout(wait.Seconds()).
		Build()

	id, err := q.client.Do(ctx, cmd).ToString()
	if rueidis.IsRedisNil(err) {
		return nil, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("redisqueue: dequeue: %w", err)
	}
	return q.claim(ctx, id)
}

// claim stamps the lease on an id that BLMOVE just put in the active list.
// It returns (nil, nil) when the id is orphaned or was already released.
func (q *Queue) claim(ctx context.Context, id string) (*jobs.Delivery, error) {
	deadline := q.clock.Now().Add(q.lease).UnixMilli()
	vals, err := luaClaim.Exec(ctx, q.client,
		[]string{q.jobKey(id), q.activeKey()},
		[]string{id, strconv.FormatInt(deadline, 10)},
	).ToArray()
	if rueidis.IsRedisNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redisqueue: claim %q: %w", id, err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("redisqueue: claim %q: unexpected reply of %d elements", id, len(vals))
	}

	payload, err := vals[0].ToString()
	if err != nil {
		return nil, fmt.Errorf("redisqueue: claim %q payload: %w", id, err)
	}
	attempt, err := parseIntReply(vals[1])
	if err != nil {
		return nil, fmt.Errorf("redisqueue: claim %q attempts: %w", id, err)
	}
	maxAttempts, err := parseIntReply(vals[2])
	if err != nil {
		return nil, fmt.Errorf("redisqueue: claim %q max_attempts: %w", id, err)
	}

	return &jobs.Delivery{
		ID:          id,
		Payload:     []byte(payload),
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
	}, nil
}

func (q *Queue) Ack(ctx context.Context, d *jobs.Delivery) error {
	n, err := luaAck.Exec(ctx, q.client,
		[]string{q.activeKey(), q.jobKey(d.ID)},
		[]string{d.ID},
	).AsInt64()
	if err != nil {
		return fmt.Errorf("redisqueue: ack %q: %w", d.ID, err)
	}
	if n == 0 {
		return jobs.ErrNotActive
	}
	return nil
}

func (q *Queue) Nack(ctx context.Context, d *jobs.Delivery, cause error) (jobs.Outcome, error) {
	res, err := q.retry(ctx, d.ID, reason(cause), false, time.Time{})
	if err != nil {
		return 0, err
	}
	switch res {
	case retryRequeued:
		return jobs.Requeued, nil
	case retryDead:
		return jobs.DeadLettered, nil
	default:
		return 0, jobs.ErrNotActive
	}
}

func (q *Queue) Bury(ctx context.Context, d *jobs.Delivery, cause error) error {
	res, err := q.retry(ctx, d.ID, reason(cause), true, time.Time{})
	if err != nil {
		return err
	}
	if res != retryDead {
		return jobs.ErrNotActive
	}
	return nil
}

// Reap walks the active list and releases every job whose lease has expired.
// An id that was moved but not claimed yet gets one lease of grace first.
func (q *Queue) Reap(ctx context.Context) ([]jobs.Delivery, error) {
	ids, err := q.client.Do(ctx, q.client.B().Lrange().Key(q.activeKey()).Start(0).Stop(-1).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("redisqueue: list active: %w", err)
	}

	now := q.clock.Now()
	var dead []jobs.Delivery
	for _, id := range ids {
		res, err := q.retry(ctx, id, "lease expired", false, now)
		if err != nil {
			return dead, err
		}
		if res != retryDead {
			continue
		}
		d, err := q.load(ctx, id)
		if err != nil {
			return dead, err
		}
		dead = append(dead, d)
	}
	return dead, nil
}

// retry releases id from the active list. A zero now skips the lease check.
func (q *Queue) retry(ctx context.Context, id, why string, force bool, now time.Time) (int64, error) {
	forceArg := "0"
	if force {
		forceArg = "1"
	}
	cutoff, grace := "", ""
	if !now.IsZero() {
		cutoff = strconv.FormatInt(now.UnixMilli(), 10)
		grace = strconv.FormatInt(now.Add(q.lease).UnixMilli(), 10)
	}
	res, err := luaRetry.Exec(ctx, q.client,
		[]string{q.activeKey(), q.readyKey(), q.deadKey(), q.jobKey(id)},
		[]string{id, why, forceArg, cutoff, grace},
	).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("redisqueue: retry %q: %w", id, err)
	}
	return res, nil
}

func (q *Queue) load(ctx context.Context, id string) (jobs.Delivery, error) {
	vals, err := q.client.Do(ctx, q.client.B().Hmget().Key(q.jobKey(id)).Field("payload", "attempts", "max_attempts").Build()).ToArray()
	if err != nil {
		return jobs.Delivery{}, fmt.Errorf("redisqueue: load %q: %w", id, err)
	}
	d := jobs.Delivery{ID: id}
	if len(vals) == 3 {
		if s, err := vals[0].ToString(); err == nil {
			d.Payload = []byte(s)
		}
		d.Attempt, _ = parseIntReply(vals[1])
		d.MaxAttempts, _ = parseIntReply(vals[2])
	}
	return d, nil
}

func parseIntReply(m rueidis.RedisMessage) (int, error) {
	s, err := m.ToString()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
