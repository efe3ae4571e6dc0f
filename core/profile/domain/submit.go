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
	"errors"
	"log/slog"
	"strconv"

	"aboba/modules/events"
)

// SubmitProfile moves a draft or needs_fix profile into moderation.
//
// Status and readiness are checked under the profile row lock, the profile is
// marked submitted, profile.submitted is published after commit and the
// profile then moves on to pending_moderation.
func (app *Application) SubmitProfile(ctx context.Context, profileID, callerID int64) (*Profile, error) {
	var submitted *Profile
	err := app.writer.WithTx(ctx, func(ctx context.Context, tx ProfileWriteTx) error {
		p, err := tx.LockProfile(ctx, profileID)
		if err != nil {
			return err
		}
		if p.UserID != callerID {
			return ErrProfileNotFound
		}
		if !p.Status.Submittable() {
			return ErrInvalidState
		}

		facts, err := tx.ReadinessFacts(ctx, profileID)
		if err != nil {
			return err
		}
		if r := EvaluateReadiness(facts); !r.OK {
			return &NotReadyError{Reasons: r.Reasons}
		}

		now := app.clock.Now()
		if err := tx.SetStatus(ctx, profileID, StatusSubmitted, now); err != nil {
			return err
		}
		p.Status = StatusSubmitted
		p.UpdatedAt = now
		p.SubmittedAt = &now
		submitted = p
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrProfileNotFound), errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotReady):
		slog.DebugContext(ctx, "profile submission rejected", slog.Int64("profile_id", profileID), slog.Any("error", err))
		return nil, err
	default:
		slog.ErrorContext(ctx, "profile submission failed", slog.Int64("profile_id", profileID), slog.Any("error", err))
		return nil, ErrUnhandled
	}

	app.publisher.Publish(ctx, events.Event{
		Name:  EventProfileSubmitted,
		ID:    events.NewID(),
		At:    app.clock.Now(),
		Actor: &events.Actor{Type: "user", ID: strconv.FormatInt(callerID, 10)},
		Payload: SubmittedPayload{
			ProfileID: strconv.FormatInt(profileID, 10),
			UserID:    strconv.FormatInt(callerID, 10),
		},
	})

	now := app.clock.Now()
	moved, err := app.writer.TransitionStatus(ctx, profileID, StatusSubmitted, StatusPendingModeration, now)
	if err != nil {
		slog.ErrorContext(ctx, "move to pending moderation failed", slog.Int64("profile_id", profileID), slog.Any("error", err))
		return nil, ErrUnhandled
	}
	if moved {
		submitted.Status = StatusPendingModeration
		submitted.UpdatedAt = now
	}

	slog.InfoContext(ctx, "profile submitted",
		slog.Int64("profile_id", profileID),
		slog.Int64("user_id", callerID),
		slog.String("status", string(submitted.Status)),
	)
	return submitted, nil
}
