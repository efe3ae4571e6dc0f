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

// Package ratelimit holds time-window limiters over a shared CounterStore.
package ratelimit

import (
	"context"
	"time"
)

type (
	LimiterFactory func(limit int64, window time.Duration) RateLimiter

	// RateLimiter answers "N requests per window" questions for a Key.
	RateLimiter interface {
		Allow(ctx context.Context, key Key) (Result, error)
	}

	// Key identifies the caller being limited, e.g. "sid:3f2a..." or "10.0.0.7".
	Key string

	Result struct {
		Allowed       bool
		Remaining     int64
		RetryAfter    time.Duration // zero when allowed
		Limit         int64
		Window        time.Duration
		WindowResetIn time.Duration
	}
)

// Scoped prefixes k with scope. Limiters built by one factory share a
// counter namespace, so callers that limit several routes must scope keys
// per route or the routes would drain each other's budget.
func (k Key) Scoped(scope string) Key {
	if scope == "" || k == "" {
		return k
	}
	return Key(scope + "|" + string(k))
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the Retry-After header.
func (r Result) RetryAfterSeconds() int64 {
	if r.RetryAfter <= 0 {
		return 0
	}
	s := int64(r.RetryAfter / time.Second)
	if r.RetryAfter%time.Second != 0 {
		s++
	}
	return s
}

