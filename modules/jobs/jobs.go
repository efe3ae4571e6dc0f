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

// Package jobs defines an at-least-once job channel with a bounded attempt
// count and a dead-letter terminal state.
//
// Lifecycle of a job:
//
//	Enqueue -> ready -> Dequeue (attempt++) -> active -> Ack      -> gone
//	                                                  -> Nack     -> ready | dead
//	                                                  -> Bury     -> dead
//	                                                  -> (lease expires, Reap) -> ready | dead
//
// A job is held by at most one consumer at a time while its lease is valid.
package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotActive is returned when acking/nacking a delivery whose lease was already reaped.
	ErrNotActive = errors.New("jobs: delivery is no longer active")
	ErrClosed    = errors.New("jobs: queue closed")
)

type Outcome int

const (
	Requeued Outcome = iota + 1
	DeadLettered
)

func (o Outcome) String() string {
	switch o {
	case Requeued:
		return "requeued"
	case DeadLettered:
		return "dead_lettered"
	default:
		return "unknown"
	}
}

type (
	Delivery struct {
		ID          string
		Payload     []byte
		Attempt     int
		MaxAttempts int
	}

	EnqueueOptions struct {
		MaxAttempts int
	}

	Producer interface {
		// Enqueue is a no-op when a job with the same id is still live.
		Enqueue(ctx context.Context, id string, payload []byte, opts EnqueueOptions) error
	}

	Consumer interface {
		// Dequeue blocks up to wait and returns (nil, nil) when nothing arrived.
		Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error)
		Ack(ctx context.Context, d *Delivery) error
		// Nack re-queues d, or dead-letters it once its attempts are used up.
		Nack(ctx context.Context, d *Delivery, cause error) (Outcome, error)
		// Bury dead-letters d regardless of remaining attempts.
		Bury(ctx context.Context, d *Delivery, cause error) error
	}

	// Reaper returns expired leases to the queue. Jobs whose attempts are used
	// up are dead-lettered and returned so the caller can record the failure.
	Reaper interface {
		Reap(ctx context.Context) ([]Delivery, error)
	}

	Queue interface {
		Producer
		Consumer
		Reaper
	}
)

// Attempts returns the effective cap, at least 1.
func (o EnqueueOptions) Attempts() int {
	if o.MaxAttempts <= 0 {
		return 1
	}
	return o.MaxAttempts
}
