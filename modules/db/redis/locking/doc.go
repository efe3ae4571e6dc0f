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

// Package locking runs periodic tasks on at most one node at a time.
//
//	exec := locking.NewLockingTaskExecutor(locker, locking.WithNamePrefix("media:"))
//	err := exec.Execute(ctx, locking.LockConfiguration{
//		Name:           "reap-leases",
//		LockAtMostFor:  time.Minute,
//		LockAtLeastFor: 10 * time.Second,
//	}, reap)
//	if errors.Is(err, locking.ErrLockNotAcquired) {
//		// another node holds it
//	}
//
// Every returns a loop that ticks Execute and treats ErrLockNotAcquired as normal.
package locking
