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
	"context"
	"database/sql"
	"errors"
	"fmt"

	"aboba/core/media/domain"
	"aboba/modules/db"

	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/stephenafamo/scan"
)

var (
	_ domain.PhotoWriteStore = (*PostgresPhotoWriter)(nil)
	_ domain.PhotoWriteTx    = (*photoTx)(nil)
)

type (
	PostgresPhotoWriter struct {
		pool db.ConnectionPool
	}

	// photoTx runs every statement on the transaction it was created for.
	photoTx struct {
		q db.Querier
	}
)

func NewPostgresPhotoWriter(pool db.ConnectionPool) *PostgresPhotoWriter {
	return &PostgresPhotoWriter{pool: pool}
}

// WithTx implements PhotoWriteStore.
func (w *PostgresPhotoWriter) WithTx(ctx context.Context, fn func(ctx context.Context, tx domain.PhotoWriteTx) error) error {
	return w.pool.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
		return fn(ctx, &photoTx{q: q})
	})
}

// MarkProcessing implements PhotoWriteStore.
func (w *PostgresPhotoWriter) MarkProcessing(ctx context.Context, photoID int64) (bool, error) {
	query := psql.Update(
		um.Table(photosTable),
		um.SetCol("processing_state").To(psql.Arg(string(domain.StateProcessing))),
		um.Where(psql.Quote("id").EQ(psql.Arg(photoID))),
		um.Where(psql.Quote("processing_state").EQ(psql.Arg(string(domain.StatePending)))),
		um.Returning("id"),
	)
	return w.conditional(ctx, query)
}

// MarkProcessed implements PhotoWriteStore. processed_at is only written on
// the transition, so a replay never moves it.
func (w *PostgresPhotoWriter) MarkProcessed(ctx context.Context, photoID int64, outcome domain.ProcessedOutcome) (bool, error) {
	query := psql.Update(
		um.Table(photosTable),
		um.SetCol("processing_state").To(psql.Arg(string(domain.StateProcessed))),
		um.SetCol("virus_scanned").To(psql.Arg(outcome.VirusScanned)),
		um.SetCol("exif_stripped").To(psql.Arg(outcome.ExifStripped)),
		um.SetCol("watermark_applied").To(psql.Arg(outcome.WatermarkApplied)),
		um.SetCol("nsfw_score").To(psql.Arg(outcome.NSFWScore)),
		um.SetCol("processed_at").To(psql.Arg(outcome.ProcessedAt)),
		um.SetCol("processing_error").To(psql.Raw("NULL")),
		um.Where(psql.Quote("id").EQ(psql.Arg(photoID))),
		um.Where(psql.Quote("processing_state").In(
			psql.Arg(string(domain.StatePending)),
			psql.Arg(string(domain.StateProcessing)),
		)),
		um.Returning("id"),
	)
	return w.conditional(ctx, query)
}

// MarkFailed implements PhotoWriteStore.
func (w *PostgresPhotoWriter) MarkFailed(ctx context.Context, photoID int64, reason string) (bool, error) {
	query := psql.Update(
		um.Table(photosTable),
		um.SetCol("processing_state").To(psql.Arg(string(domain.StateFailed))),
		um.SetCol("processing_error").To(psql.Arg(reason)),
		um.Where(psql.Quote("id").EQ(psql.Arg(photoID))),
		um.Where(psql.Quote("processing_state").In(
			psql.Arg(string(domain.StatePending)),
			psql.Arg(string(domain.StateProcessing)),
		)),
		um.Returning("id"),
	)
	return w.conditional(ctx, query)
}

// conditional runs an UPDATE ... RETURNING id and reports whether a row matched.
func (w *PostgresPhotoWriter) conditional(ctx context.Context, query bob.Query) (bool, error) {
	_, err := bob.One(ctx, w.pool.Writer(), query, scan.SingleColumnMapper[int64])
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapPhotoError(err)
	}
	return true, nil
}

// LockProfile implements PhotoWriteTx with a row lock on the owning profile.
func (t *photoTx) LockProfile(ctx context.Context, profileID int64) error {
	query := psql.RawQuery(`SELECT id FROM `+profilesTable+` WHERE id = $1 FOR UPDATE`, profileID)
	_, err := bob.One(ctx, t.q, query, scan.SingleColumnMapper[int64])
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrProfileNotFound
	}
	if err != nil {
		return fmt.Errorf("lock profile %d: %w", profileID, err)
	}
	return nil
}

func (t *photoTx) FindByStorageKey(ctx context.Context, storageKey string) (*domain.Photo, error) {
	return t.findOne(ctx, sm.Where(psql.Quote("storage_key").EQ(psql.Arg(storageKey))))
}

func (t *photoTx) FindByContentHash(ctx context.Context, profileID int64, contentHash string) (*domain.Photo, error) {
	return t.findOne(ctx,
		sm.Where(psql.Quote("profile_id").EQ(psql.Arg(profileID))),
		sm.Where(psql.Quote("content_hash").EQ(psql.Arg(contentHash))),
	)
}

func (t *photoTx) GetProfilePhoto(ctx context.Context, profileID, photoID int64) (*domain.Photo, error) {
	return t.findOne(ctx,
		sm.Where(psql.Quote("id").EQ(psql.Arg(photoID))),
		sm.Where(psql.Quote("profile_id").EQ(psql.Arg(profileID))),
	)
}

func (t *photoTx) findOne(ctx context.Context, where ...bob.Mod[*dialect.SelectQuery]) (*domain.Photo, error) {
	mods := []bob.Mod[*dialect.SelectQuery]{
		sm.Columns(photoColumns...),
		sm.From(photosTable),
	}
	mods = append(mods, where...)

	row, err := bob.One(ctx, t.q, psql.Select(mods...), scan.StructMapper[PhotoRow]())
	if err != nil {
		return nil, wrapPhotoError(err)
	}
	p := toPhoto(row)
	return &p, nil
}

func (t *photoTx) CountPhotos(ctx context.Context, profileID int64) (int, error) {
	query := psql.Select(
		sm.Columns("COUNT(*)"),
		sm.From(photosTable),
		sm.Where(psql.Quote("profile_id").EQ(psql.Arg(profileID))),
	)
	count, err := bob.One(ctx, t.q, query, scan.SingleColumnMapper[int])
	if err != nil {
		return 0, fmt.Errorf("count photos: %w", err)
	}
	return count, nil
}

func (t *photoTx) MaxPosition(ctx context.Context, profileID int64) (int, error) {
	query := psql.Select(
		sm.Columns("COALESCE(MAX(position), 0)"),
		sm.From(photosTable),
		sm.Where(psql.Quote("profile_id").EQ(psql.Arg(profileID))),
	)
	pos, err := bob.One(ctx, t.q, query, scan.SingleColumnMapper[int])
	if err != nil {
		return 0, fmt.Errorf("max position: %w", err)
	}
	return pos, nil
}

func (t *photoTx) PositionTaken(ctx context.Context, profileID int64, position int, excludePhotoID int64) (bool, error) {
	query := psql.RawQuery(
		`SELECT EXISTS (SELECT 1 FROM `+photosTable+` WHERE profile_id = $1 AND position = $2 AND id <> $3)`,
		profileID, position, excludePhotoID,
	)
	taken, err := bob.One(ctx, t.q, query, scan.SingleColumnMapper[bool])
	if err != nil {
		return false, fmt.Errorf("probe position %d: %w", position, err)
	}
	return taken, nil
}

func (t *photoTx) InsertPhoto(ctx context.Context, p domain.NewPhoto) (*domain.Photo, error) {
	query := psql.Insert(
		im.Into(photosTable,
			"profile_id", "storage_key", "content_hash", "size_bytes", "mime",
			"is_cover", "position", "processing_state", "created_at",
		),
		im.Values(
			psql.Arg(p.ProfileID),
			psql.Arg(p.StorageKey),
			psql.Arg(p.ContentHash),
			psql.Arg(p.SizeBytes),
			psql.Arg(p.Mime),
			psql.Arg(p.IsCover),
			psql.Arg(p.Position),
			psql.Arg(string(p.State)),
			psql.Arg(p.CreatedAt),
		),
		im.Returning(photoColumns...),
	)

	row, err := bob.One(ctx, t.q, query, scan.StructMapper[PhotoRow]())
	if err != nil {
		return nil, wrapPhotoError(err)
	}
	photo := toPhoto(row)
	return &photo, nil
}

func (t *photoTx) ClearCover(ctx context.Context, profileID int64, exceptPhotoID int64) error {
	query := psql.Update(
		um.Table(photosTable),
		um.SetCol("is_cover").To(psql.Arg(false)),
		um.Where(psql.Quote("profile_id").EQ(psql.Arg(profileID))),
		um.Where(psql.Quote("id").NE(psql.Arg(exceptPhotoID))),
		um.Where(psql.Quote("is_cover")),
		um.Returning("id"),
	)
	if _, err := bob.All(ctx, t.q, query, scan.SingleColumnMapper[int64]); err != nil {
		return wrapPhotoError(err)
	}
	return nil
}

func (t *photoTx) SetCover(ctx context.Context, photoID int64, isCover bool) error {
	query := psql.Update(
		um.Table(photosTable),
		um.SetCol("is_cover").To(psql.Arg(isCover)),
		um.Where(psql.Quote("id").EQ(psql.Arg(photoID))),
		um.Returning("id"),
	)
	_, err := bob.One(ctx, t.q, query, scan.SingleColumnMapper[int64])
	return wrapPhotoError(err)
}

func (t *photoTx) SetPosition(ctx context.Context, photoID int64, position int) error {
	query := psql.Update(
		um.Table(photosTable),
		um.SetCol("position").To(psql.Arg(position)),
		um.Where(psql.Quote("id").EQ(psql.Arg(photoID))),
		um.Returning("id"),
	)
	_, err := bob.One(ctx, t.q, query, scan.SingleColumnMapper[int64])
	return wrapPhotoError(err)
}
