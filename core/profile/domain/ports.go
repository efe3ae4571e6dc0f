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

package domain

import (
	"context"
	"time"

	"aboba/modules/events"
)

// ProfileReadStore defines the read side of profile persistence.
//
// Implementations may route to a read replica, so a readiness answer can lag
// a photo that was processed a moment ago. Submission re-evaluates inside a
// write transaction.
type ProfileReadStore interface {
	// IsProfileOwnedBy is false for both missing and foreign profiles.
	IsProfileOwnedBy(ctx context.Context, profileID, userID int64) (bool, error)

	// ReadinessFacts returns zero facts with Exists=false for a missing profile.
	ReadinessFacts(ctx context.Context, profileID int64) (ReadinessFacts, error)
}

// ProfileWriteStore defines the write side of profile persistence.
type ProfileWriteStore interface {
	// WithTx runs fn in one transaction, rolled back when fn returns an error.
	// Do not nest.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx ProfileWriteTx) error) error

	// TransitionStatus moves the profile from one status to another and
	// reports whether the row was still in from.
	TransitionStatus(ctx context.Context, profileID int64, from, to Status, at time.Time) (bool, error)
}

// ProfileWriteTx is a transaction scoped view of ProfileWriteStore.
// It is not safe for concurrent use.
type ProfileWriteTx interface {
	// LockProfile returns ErrProfileNotFound when absent and holds a row lock
	// until the transaction ends.
	LockProfile(ctx context.Context, profileID int64) (*Profile, error)

	ReadinessFacts(ctx context.Context, profileID int64) (ReadinessFacts, error)

	// SetStatus also stamps submittedAt when status is StatusSubmitted.
	SetStatus(ctx context.Context, profileID int64, status Status, at time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, evt events.Event)
}
