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
	"io"
	"time"

	"aboba/modules/events"
)

// ProfileOwnership answers whether a profile exists and belongs to a caller.
// Implementations must not distinguish "missing" from "owned by someone else".
type ProfileOwnership interface {
	IsProfileOwnedBy(ctx context.Context, profileID, callerID int64) (bool, error)
}

// PhotoReadStore defines the read side of photo persistence.
//
// Implementations may route to a read replica. Reads that feed a write decision
// (position probing, cover counting) go through PhotoWriteTx instead.
type PhotoReadStore interface {
	// ListPhotos returns all photos of a profile ordered by ascending position.
	ListPhotos(ctx context.Context, profileID int64) ([]Photo, error)

	// GetPhoto returns ErrPhotoNotFound when the row is absent.
	GetPhoto(ctx context.Context, photoID int64) (*Photo, error)
}

// PhotoWriteStore defines the write side of photo persistence.
//
// The Mark* transitions are conditional updates: they only apply while the
// row is in a non-terminal state and report whether the row changed. This is
// what keeps processingState monotonic under job redelivery.
type PhotoWriteStore interface {
	// WithTx runs fn in one transaction. The transaction is rolled back when
	// fn returns an error. Do not nest.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx PhotoWriteTx) error) error

	// MarkProcessing moves pending to processing.
	MarkProcessing(ctx context.Context, photoID int64) (bool, error)

	// MarkProcessed moves pending/processing to processed and stamps processedAt once.
	MarkProcessed(ctx context.Context, photoID int64, outcome ProcessedOutcome) (bool, error)

	// MarkFailed moves pending/processing to failed.
	MarkFailed(ctx context.Context, photoID int64, reason string) (bool, error)
}

// PhotoWriteTx is a transaction scoped view of PhotoWriteStore.
// It is not safe for concurrent use.
type PhotoWriteTx interface {
	// LockProfile serializes position and cover allocation for one profile
	// until the transaction ends.
	LockProfile(ctx context.Context, profileID int64) error

	// FindByStorageKey returns ErrPhotoNotFound when absent.
	FindByStorageKey(ctx context.Context, storageKey string) (*Photo, error)
	// FindByContentHash returns ErrPhotoNotFound when absent.
	FindByContentHash(ctx context.Context, profileID int64, contentHash string) (*Photo, error)

	CountPhotos(ctx context.Context, profileID int64) (int, error)
	// MaxPosition returns 0 for a profile without photos.
	MaxPosition(ctx context.Context, profileID int64) (int, error)
	// PositionTaken ignores the row identified by excludePhotoID (0 for none).
	PositionTaken(ctx context.Context, profileID int64, position int, excludePhotoID int64) (bool, error)

	// InsertPhoto returns ErrDuplicatePhoto, ErrPositionTaken or ErrCoverTaken on
	// constraint violations.
	InsertPhoto(ctx context.Context, p NewPhoto) (*Photo, error)

	// GetProfilePhoto returns ErrPhotoNotFound when the photo does not belong to the profile.
	GetProfilePhoto(ctx context.Context, profileID, photoID int64) (*Photo, error)
	ClearCover(ctx context.Context, profileID int64, exceptPhotoID int64) error
	SetCover(ctx context.Context, photoID int64, isCover bool) error
	SetPosition(ctx context.Context, photoID int64, position int) error
}

// BlobStore is the object storage port. Originals and derived renditions live
// in separate buckets owned by the implementation.
type BlobStore interface {
	// PresignOriginalUpload issues a POST policy for key, constrained to mime
	// and a content length between 1 and maxBytes.
	PresignOriginalUpload(ctx context.Context, key, mime string, maxBytes int64, ttl time.Duration) (*PresignedUpload, error)

	// OpenOriginal returns ErrBlobNotFound when the object does not exist.
	OpenOriginal(ctx context.Context, key string) (io.ReadCloser, error)

	// PutDerived overwrites key, so it is safe to repeat.
	PutDerived(ctx context.Context, key, contentType string, data []byte) error

	PresignDerivedDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// JobQueue hands new photos to the processing worker.
type JobQueue interface {
	// EnqueueProcessPhoto is idempotent per photo while the job is live.
	EnqueueProcessPhoto(ctx context.Context, job ProcessPhotoJob, maxAttempts int) error
}

// EventPublisher broadcasts domain events best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, evt events.Event)
}

// Transformation is the outcome of the image pipeline for one original.
type Transformation struct {
	Variants map[VariantName][]byte

	VirusScanned     bool
	ExifStripped     bool
	WatermarkApplied bool
	NSFWScore        float64
}

// Transformer runs scan, metadata stripping, resizing and watermarking.
// It returns an error wrapping ErrRejectedContent for payloads that must not be retried.
type Transformer interface {
	Transform(ctx context.Context, original io.Reader, mime string) (*Transformation, error)
}
