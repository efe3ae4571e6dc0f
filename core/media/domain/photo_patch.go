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
)

// PatchPhoto changes the cover flag and/or display position of one photo.
//
// Setting the cover clears it on every other photo of the profile within the
// same transaction, so at most one cover exists once the call settles.
// An order index n maps to max(1, floor(n))*10 and is probed upward past
// occupied slots, ignoring the target's own current slot.
func (app *Application) PatchPhoto(ctx context.Context, req PatchPhotoRequest) (*PhotoSummary, error) {
	if err := app.ensureOwned(ctx, req.ProfileID, req.CallerID); err != nil {
		return nil, err
	}
	if req.IsCover == nil && req.OrderIndex == nil {
		return nil, ErrNothingToUpdate
	}
	if req.OrderIndex != nil && !validOrderIndex(*req.OrderIndex) {
		return nil, ErrInvalidInput
	}

	var (
		photo *Photo
		err   error
	)
	for attempt := 1; attempt <= app.cfg.AllocationAttempts; attempt++ {
		photo, err = app.patchOnce(ctx, req)
		if err == nil || !isAllocationConflict(err) {
			break
		}
		slog.DebugContext(ctx, "patch photo conflict, retrying",
			slog.Int64("photo_id", req.PhotoID),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}

	switch {
	case err == nil:
		return &PhotoSummary{Photo: *photo}, nil
	case errors.Is(err, ErrPhotoNotFound):
		return nil, ErrPhotoNotFound
	case isAllocationConflict(err), errors.Is(err, ErrAllocationExhausted):
		slog.ErrorContext(ctx, "patch photo allocation exhausted", slog.Int64("photo_id", req.PhotoID), slog.Any("error", err))
		return nil, ErrAllocationExhausted
	default:
		slog.ErrorContext(ctx, "patch photo failed", slog.Int64("photo_id", req.PhotoID), slog.Any("error", err))
		return nil, ErrUnhandled
	}
}

func (app *Application) patchOnce(ctx context.Context, req PatchPhotoRequest) (*Photo, error) {
	var photo *Photo
	err := app.writer.WithTx(ctx, func(ctx context.Context, tx PhotoWriteTx) error {
		if err := tx.LockProfile(ctx, req.ProfileID); err != nil {
			return err
		}

		p, err := tx.GetProfilePhoto(ctx, req.ProfileID, req.PhotoID)
		if err != nil {
			return err
		}

		if req.IsCover != nil {
			if *req.IsCover {
				if err := tx.ClearCover(ctx, req.ProfileID, p.ID); err != nil {
					return err
				}
			}
			if err := tx.SetCover(ctx, p.ID, *req.IsCover); err != nil {
				return err
			}
			p.IsCover = *req.IsCover
		}

		if req.OrderIndex != nil {
			position, err := probeFreePosition(ctx, tx, req.ProfileID, orderIndexPosition(*req.OrderIndex), p.ID)
			if err != nil {
				return err
			}
			if position != p.Position {
				if err := tx.SetPosition(ctx, p.ID, position); err != nil {
					return err
				}
				p.Position = position
			}
		}

		photo = p
		return nil
	})
	return photo, err
}
