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
	"fmt"
	"log/slog"
	"strconv"

	"aboba/modules/clock"
	"aboba/modules/events"
)

const EventPhotoProcessed = "media.photo.processed"

type PhotoProcessedPayload struct {
	ProfileID  int64  `json:"profileId"`
	PhotoID    int64  `json:"photoId"`
	StorageKey string `json:"storageKey"`
}

// Processor runs one attempt of a ProcessPhotoJob.
//
// Every step is safe to repeat: derived keys are deterministic and the
// processed transition is conditional, so the event fires only on the
// attempt that actually moved the row.
type Processor struct {
	// reader must see the primary; a lagging replica would turn a fresh photo into a permanent failure
	reader      PhotoReadStore
	writer      PhotoWriteStore
	blobs       BlobStore
	transformer Transformer
	publisher   EventPublisher
	clock       clock.Clock
}

func NewProcessor(
	reader PhotoReadStore,
	writer PhotoWriteStore,
	blobs BlobStore,
	transformer Transformer,
	publisher EventPublisher,
	c clock.Clock,
) *Processor {
	if c == nil {
		c = clock.RealClockProvider()
	}
	return &Processor{
		reader:      reader,
		writer:      writer,
		blobs:       blobs,
		transformer: transformer,
		publisher:   publisher,
		clock:       c,
	}
}

// Process returns nil when the photo is processed (now or earlier). Errors
// wrapping ErrPermanent must be dead-lettered; any other error is transient.
func (p *Processor) Process(ctx context.Context, job ProcessPhotoJob) error {
	photo, err := p.reader.GetPhoto(ctx, job.PhotoID)
	if errors.Is(err, ErrPhotoNotFound) {
		return fmt.Errorf("%w: photo %d: %w", ErrPermanent, job.PhotoID, err)
	}
	if err != nil {
		return fmt.Errorf("load photo %d: %w", job.PhotoID, err)
	}

	switch photo.State {
	case StateProcessed:
		slog.DebugContext(ctx, "photo already processed, skipping", slog.Int64("photo_id", photo.ID))
		return nil
	case StateFailed:
		return fmt.Errorf("%w: photo %d is in a failed state", ErrPermanent, photo.ID)
	}

	if photo.ProfileID != job.ProfileID || photo.StorageKey != job.StorageKey {
		return fmt.Errorf("%w: job does not match photo %d", ErrPermanent, photo.ID)
	}

	original, err := p.blobs.OpenOriginal(ctx, job.StorageKey)
	if errors.Is(err, ErrBlobNotFound) {
		return fmt.Errorf("%w: original %q: %w", ErrPermanent, job.StorageKey, err)
	}
	if err != nil {
		return fmt.Errorf("open original %q: %w", job.StorageKey, err)
	}
	defer original.Close()

	result, err := p.transformer.Transform(ctx, original, photo.Mime)
	if errors.Is(err, ErrRejectedContent) {
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	if err != nil {
		return fmt.Errorf("transform photo %d: %w", photo.ID, err)
	}

	for _, v := range Variants {
		data, ok := result.Variants[v]
		if !ok || len(data) == 0 {
			return fmt.Errorf("transform photo %d: missing %s variant", photo.ID, v)
		}
		key := DerivedKey(photo.ProfileID, photo.ID, v)
		if err := p.blobs.PutDerived(ctx, key, MimeJPEG, data); err != nil {
			return fmt.Errorf("write %s variant: %w", v, err)
		}
	}

	now := p.clock.Now()
	changed, err := p.writer.MarkProcessed(ctx, photo.ID, ProcessedOutcome{
		VirusScanned:     result.VirusScanned,
		ExifStripped:     result.ExifStripped,
		WatermarkApplied: result.WatermarkApplied,
		NSFWScore:        result.NSFWScore,
		ProcessedAt:      now,
	})
	if err != nil {
		return fmt.Errorf("mark photo %d processed: %w", photo.ID, err)
	}
	if !changed {
		return nil
	}

	slog.InfoContext(ctx, "photo processed", slog.Int64("profile_id", photo.ProfileID), slog.Int64("photo_id", photo.ID))

	p.publisher.Publish(ctx, events.Event{
		Name: EventPhotoProcessed,
		ID:   strconv.FormatInt(photo.ID, 10),
		At:   now,
		Payload: PhotoProcessedPayload{
			ProfileID:  photo.ProfileID,
			PhotoID:    photo.ID,
			StorageKey: photo.StorageKey,
		},
	})
	return nil
}

// Fail records the terminal failed state once the job is dead-lettered.
func (p *Processor) Fail(ctx context.Context, job ProcessPhotoJob, cause error) error {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	changed, err := p.writer.MarkFailed(ctx, job.PhotoID, reason)
	if err != nil {
		return fmt.Errorf("mark photo %d failed: %w", job.PhotoID, err)
	}
	if changed {
		slog.ErrorContext(ctx, "photo processing failed terminally",
			slog.Int64("profile_id", job.ProfileID),
			slog.Int64("photo_id", job.PhotoID),
			slog.String("reason", reason),
		)
	}
	return nil
}
