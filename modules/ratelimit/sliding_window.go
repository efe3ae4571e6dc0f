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

package ratelimit

import (
	"context"
	"fmt"
	"math/bits"
	"time"

	"aboba/modules/clock"
)

var _ RateLimiter = (*SlidingWindowRateLimiter)(nil)

// SlidingWindowRateLimiter approximates a sliding window with two adjacent
// fixed windows, weighting the previous one by how much of it still overlaps.
type SlidingWindowRateLimiter struct {
	clock     clock.Clock
	counter   CounterStore
	keyPrefix string

	limit  uint64
	window time.Duration
}

func SlidingWindowFactory(c clock.Clock, counter CounterStore, keyPrefix string) LimiterFactory {
	return func(l int64, w time.Duration) RateLimiter {
		return &SlidingWindowRateLimiter{
			clock:     c,
			counter:   counter,
			keyPrefix: keyPrefix,
			limit:     uint64(max(l, 0)),
			window:    w,
		}
	}
}

// Allow implements RateLimiter.
func (s *SlidingWindowRateLimiter) Allow(ctx context.Context, key Key) (Result, error) {
	if s.window <= 0 {
		return Result{}, fmt.Errorf("ratelimit: window must be positive, got %s", s.window)
	}

	nowNs := s.clock.Now().UnixNano()
	windowNs := s.window.Nanoseconds()
	idx := nowNs / windowNs

	current, err := s.counter.Incr(ctx, s.buildKey(key, idx), s.window*2)
	if err != nil {
		return Result{}, err
	}
	previous, err := s.counter.Get(ctx, s.buildKey(key, idx-1))
	if err != nil {
		return Result{}, err
	}

	elapsed := min(max(nowNs-idx*windowNs, 0), windowNs)
	u := weightedUsage{
		current:    uint64(max(current, 0)),
		previous:   uint64(max(previous, 0)),
		prevWeight: uint64(windowNs - elapsed),
		window:     uint64(windowNs),
	}

	resetIn := max(s.window-time.Duration(elapsed), 0)
	result := Result{
		Allowed:       u.within(s.limit),
		Remaining:     int64(u.remaining(s.limit)),
		Limit:         int64(s.limit),
		Window:        s.window,
		WindowResetIn: resetIn,
	}
	if !result.Allowed {
		result.RetryAfter = resetIn
	}
	return result, nil
}

// weightedUsage is current*window + previous*prevWeight, kept as 128-bit
// integers so consecutive requests never round to the same remaining count.
type weightedUsage struct {
	current, previous  uint64
	prevWeight, window uint64
}

func (u weightedUsage) sum() (hi, lo uint64) {
	curHi, curLo := bits.Mul64(u.current, u.window)
	prevHi, prevLo := bits.Mul64(u.previous, u.prevWeight)
	lo, carry := bits.Add64(curLo, prevLo, 0)
	hi, _ = bits.Add64(curHi, prevHi, carry)
	return hi, lo
}

func (u weightedUsage) within(limit uint64) bool {
	hi, lo := u.sum()
	limitHi, limitLo := bits.Mul64(limit, u.window)
	return hi < limitHi || (hi == limitHi && lo <= limitLo)
}

// usedCeil returns ceil(usage / window), saturating at MaxUint64.
func (u weightedUsage) usedCeil() uint64 {
	hi, lo := u.sum()
	switch {
	case hi == 0:
		q := lo / u.window
		if lo%u.window != 0 {
			q++
		}
		return q
	case hi < u.window:
		q, r := bits.Div64(hi, lo, u.window)
		if r != 0 && q != ^uint64(0) {
			q++
		}
		return q
	default:
		return ^uint64(0)
	}
}

func (u weightedUsage) remaining(limit uint64) uint64 {
	used := u.usedCeil()
	if used >= limit {
		return 0
	}
	return limit - used
}

func (s *SlidingWindowRateLimiter) buildKey(key Key, windowIdx int64) string {
	return fmt.Sprintf("%s:%s:%d", s.keyPrefix, key, windowIdx)
}
