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

// ConfirmUpload records a completed upload exactly once and hands it to the worker.
//
// Replays are answered from the existing row: first by storage key, then by
// (profile, content hash). Neither path enqueues again unless the earlier
// call never got the row past pending.
//
// Allocation runs in one transaction holding the profile lock. Constraint
// violations from a concurrent writer restart the transaction, up to the
// configured allocation budget.
func (app *Application) ConfirmUpload(ctx context.Context, req ConfirmUploadRequest) (*PhotoSummary, error) {
	if err := app.ensureOwned(ctx, req.ProfileID, req.CallerID); err != nil {
		return nil, err
	}
	if err := app.validateConfirm(req); err != nil {
		slog.DebugContext(ctx, "confirm rejected", slog.Int64("profile_id", req.ProfileID), slog.Any("error", err))
		return nil, err
	}

	var (
		photo   *Photo
		created bool
		err     error
	)
	for attempt := 1; attempt <= app.cfg.AllocationAttempts; attempt++ {
		photo, created, err = app.confirmOnce(ctx, req)
		if err == nil || !isAllocationConflict(err) {
			break
		}
		slog.DebugContext(ctx, "confirm allocation conflict, retrying",
			slog.Int64("profile_id", req.ProfileID),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}
	switch {
	case err == nil:
	case isAllocationConflict(err), errors.Is(err, ErrAllocationExhausted):
		slog.ErrorContext(ctx, "confirm allocation budget exhausted", slog.Int64("profile_id", req.ProfileID), slog.Any("error", err))
		return nil, ErrAllocationExhausted
	case errors.Is(err, ErrInvalidInput):
		return nil, err
	default:
		slog.ErrorContext(ctx, "confirm transaction failed", slog.Int64("profile_id", req.ProfileID), slog.Any("error", err))
		return nil, ErrUnhandled
	}

	if created {
		slog.InfoContext(ctx, "photo confirmed",
			slog.Int64("profile_id", photo.ProfileID),
			slog.Int64("photo_id", photo.ID),
			slog.Int("position", photo.Position),
			slog.Bool("is_cover", photo.IsCover),
		)
	}

	if photo.State == StatePending {
		if err := app.handOff(ctx, photo); err != nil {
			return nil, err
		}
	}

	return &PhotoSummary{Photo: *photo}, nil
}

func (app *Application) confirmOnce(ctx context.Context, req ConfirmUploadRequest) (*Photo, bool, error) {
	var (
		photo   *Photo
		created bool
	)
	err := app.writer.WithTx(ctx, func(ctx context.Context, tx PhotoWriteTx) error {
		if err := tx.LockProfile(ctx, req.ProfileID); err != nil {
			return err
		}

		existing, err := tx.FindByStorageKey(ctx, req.StorageKey)
		if err == nil {
			if existing.ProfileID != req.ProfileID {
				return ErrInvalidInput
			}
			photo = existing
			return nil
		}
		if !errors.Is(err, ErrPhotoNotFound) {
			return err
		}

		existing, err = tx.FindByContentHash(ctx, req.ProfileID, req.ContentHash)
		if err == nil {
			photo = existing
			return nil
		}
		if !errors.Is(err, ErrPhotoNotFound) {
			return err
		}

		count, err := tx.CountPhotos(ctx, req.ProfileID)
		if err != nil {
			return err
		}
		maxPos, err := tx.MaxPosition(ctx, req.ProfileID)
		if err != nil {
			return err
		}
		position, err := probeFreePosition(ctx, tx, req.ProfileID, maxPos+positionStep, 0)
		if err != nil {
			return err
		}

		inserted, err := tx.InsertPhoto(ctx, NewPhoto{
			ProfileID:   req.ProfileID,
			StorageKey:  req.StorageKey,
			ContentHash: req.ContentHash,
			SizeBytes:   req.SizeBytes,
			Mime:        req.Mime,
			IsCover:     count == 0,
			Position:    position,
			State:       StatePending,
			CreatedAt:   app.clock.Now(),
		})
		if err != nil {
			return err
		}
		photo = inserted
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return photo, created, nil
}

// handOff enqueues the processing job and then moves the row to processing.
// A failed enqueue leaves the row pending so that a client retry re-enqueues it.
func (app *Application) handOff(ctx context.Context, photo *Photo) error {
	job := ProcessPhotoJob{
		ProfileID:  photo.ProfileID,
		PhotoID:    photo.ID,
		StorageKey: photo.StorageKey,
	}
	if err := app.queue.EnqueueProcessPhoto(ctx, job, app.cfg.MaxAttempts); err != nil {
		slog.ErrorContext(ctx, "enqueue process photo failed", slog.Int64("photo_id", photo.ID), slog.Any("error", err))
		return ErrUnhandled
	}
	slog.InfoContext(ctx, "enqueued process photo job",
		slog.Int64("profile_id", photo.ProfileID),
		slog.Int64("photo_id", photo.ID),
		slog.Int("max_attempts", app.cfg.MaxAttempts),
	)

	changed, err := app.writer.MarkProcessing(ctx, photo.ID)
	if err != nil {
		// the job is queued and the worker accepts pending rows, so the photo still progresses
		slog.WarnContext(ctx, "mark processing failed", slog.Int64("photo_id", photo.ID), slog.Any("error", err))
		photo.State = StateProcessing
		return nil
	}
	if changed {
		photo.State = StateProcessing
		return nil
	}

	// the worker got there first
	current, err := app.reader.GetPhoto(ctx, photo.ID)
	if err != nil {
		photo.State = StateProcessing
		return nil
	}
	*photo = *current
	return nil
}

func (app *Application) validateConfirm(req ConfirmUploadRequest) error {
	if req.StorageKey == "" || req.ContentHash == "" || req.Mime == "" || req.SizeBytes <= 0 {
		return ErrInvalidInput
	}
	if req.SizeBytes > app.cfg.MaxUploadBytes || !IsAllowedMime(req.Mime) {
		return ErrInvalidInput
	}
	if !BelongsToProfile(req.StorageKey, req.ProfileID) {
		return ErrInvalidInput
	}
	return nil
}

func isAllocationConflict(err error) bool {
	return errors.Is(err, ErrPositionTaken) ||
		errors.Is(err, ErrCoverTaken) ||
		errors.Is(err, ErrDuplicatePhoto)
}
