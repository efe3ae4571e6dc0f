// Copyright 2025 Nguyen Nhat Nguyen
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

package worker

import (
	"context"
	"fmt"
	"sync"
)

type (
	Worker[Job any] func(context.Context, Job)

	// PanicHandler receives a value recovered from a worker call.
	PanicHandler[Job any] func(ctx context.Context, job Job, recovered error)
)

// BlockingPool runs size workers over jobs and blocks until jobs is closed
// or ctx is cancelled, then until every in-flight call has returned.
//
// A panicking call is recovered and the worker keeps pulling jobs.
func BlockingPool[Job any](ctx context.Context, size int, jobs <-chan Job, worker Worker[Job]) {
	BlockingPoolWithRecovery(ctx, size, jobs, worker, nil)
}

// BlockingPoolWithRecovery is BlockingPool with a callback for recovered panics.
func BlockingPoolWithRecovery[Job any](
	ctx context.Context,
	size int,
	jobs <-chan Job,
	worker Worker[Job],
	onPanic PanicHandler[Job],
) {
	if size <= 0 {
		size = 1
	}
	wg := sync.WaitGroup{}
	for range size {
		wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-jobs:
					if !ok {
						return
					}
					runOne(ctx, job, worker, onPanic)
				}
			}
		})
	}

	wg.Wait()
}

func runOne[Job any](ctx context.Context, job Job, worker Worker[Job], onPanic PanicHandler[Job]) {
	defer func() {
		if rec := recover(); rec != nil && onPanic != nil {
			onPanic(ctx, job, fmt.Errorf("worker panic: %v", rec))
		}
	}()
	worker(ctx, job)
}
