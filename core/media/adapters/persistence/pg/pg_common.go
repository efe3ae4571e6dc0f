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

package pg

import (
	"database/sql"
	"errors"
	"time"

	"aboba/core/media/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	photosTable   = "profile_photos"
	profilesTable = "profiles"

	constraintStorageKey  = "profile_photos_storage_key_key"
	constraintPosition    = "profile_photos_profile_id_position_key"
	constraintContentHash = "profile_photos_profile_id_content_hash_key"
	constraintOneCover    = "profile_photos_one_cover_idx"
)

var photoColumns = []any{
	"id", "profile_id", "storage_key", "content_hash", "size_bytes", "mime",
	"is_cover", "position", "processing_state",
	"virus_scanned", "exif_stripped", "watermark_applied", "nsfw_score",
	"created_at", "processed_at",
}

type (
	// PhotoRow is the persistence entity shape of profile_photos.
	PhotoRow struct {
		ID               int64           `db:"id"`
		ProfileID        int64           `db:"profile_id"`
		StorageKey       string          `db:"storage_key"`
		ContentHash      string          `db:"content_hash"`
		SizeBytes        int64           `db:"size_bytes"`
		Mime             string          `db:"mime"`
		IsCover          bool            `db:"is_cover"`
		Position         int             `db:"position"`
		State            string          `db:"processing_state"`
		VirusScanned     bool            `db:"virus_scanned"`
		ExifStripped     bool            `db:"exif_stripped"`
		WatermarkApplied bool            `db:"watermark_applied"`
		NSFWScore        sql.NullFloat64 `db:"nsfw_score"`
		CreatedAt        time.Time       `db:"created_at"`
		ProcessedAt      sql.NullTime    `db:"processed_at"`
	}
)

func toPhoto(row PhotoRow) domain.Photo {
	p := domain.Photo{
		ID:               row.ID,
		ProfileID:        row.ProfileID,
		StorageKey:       row.StorageKey,
		ContentHash:      row.ContentHash,
		SizeBytes:        row.SizeBytes,
		Mime:             row.Mime,
		IsCover:          row.IsCover,
		Position:         row.Position,
		State:            domain.ProcessingState(row.State),
		VirusScanned:     row.VirusScanned,
		ExifStripped:     row.ExifStripped,
		WatermarkApplied: row.WatermarkApplied,
		CreatedAt:        row.CreatedAt,
	}
	if row.NSFWScore.Valid {
		score := row.NSFWScore.Float64
		p.NSFWScore = &score
	}
	if row.ProcessedAt.Valid {
		at := row.ProcessedAt.Time
		p.ProcessedAt = &at
	}
	return p
}

// photoTransformer implements bob's transformer interface for automatic row to domain conversion.
type photoTransformer struct{}

func (photoTransformer) TransformScanned(rows []PhotoRow) ([]domain.Photo, error) {
	out := make([]domain.Photo, len(rows))
	for i, r := range rows {
		out[i] = toPhoto(r)
	}
	return out, nil
}

// wrapPhotoError centralizes mapping of DB errors to domain errors.
func wrapPhotoError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrPhotoNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		switch pgErr.ConstraintName {
		case constraintPosition:
			return domain.ErrPositionTaken
		case constraintOneCover:
			return domain.ErrCoverTaken
		case constraintStorageKey, constraintContentHash:
			return domain.ErrDuplicatePhoto
		}
		return domain.ErrDuplicatePhoto
	}

	return err
}
