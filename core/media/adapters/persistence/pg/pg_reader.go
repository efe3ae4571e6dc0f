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
	"log/slog"

	"aboba/core/media/domain"
	"aboba/modules/db"

	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/scan"
)

var _ domain.PhotoReadStore = (*PostgresPhotoReader)(nil)

type (
	PostgresPhotoReader struct {
		pool db.ReaderConnectionManager // calls Reader() at runtime
	}

	primaryOnly struct {
		pool db.ConnectionManager
	}
)

// NewPostgresPhotoReader creates a reader that picks a replica per query.
func NewPostgresPhotoReader(pool db.ReaderConnectionManager) *PostgresPhotoReader {
	return &PostgresPhotoReader{pool: pool}
}

// NewPrimaryPhotoReader creates a reader pinned to the primary. The worker
// uses it because a job can arrive before a replica has the confirmed row.
func NewPrimaryPhotoReader(pool db.ConnectionManager) *PostgresPhotoReader {
	return &PostgresPhotoReader{pool: primaryOnly{pool: pool}}
}

func (p primaryOnly) Reader() db.Querier {
	return p.pool.Writer()
}

// ListPhotos implements PhotoReadStore.
func (r *PostgresPhotoReader) ListPhotos(ctx context.Context, profileID int64) ([]domain.Photo, error) {
	query := psql.Select(
		sm.Columns(photoColumns...),
		sm.From(photosTable),
		sm.Where(psql.Quote("profile_id").EQ(psql.Arg(profileID))),
		sm.OrderBy("position").Asc(),
	)

	photos, err := bob.Allx[photoTransformer](ctx, r.pool.Reader(), query, scan.StructMapper[PhotoRow]())
	if err != nil {
		slog.ErrorContext(ctx, "ListPhotos query error", slog.Any("err", err))
		return nil, wrapPhotoError(err)
	}
	return photos, nil
}

// GetPhoto implements PhotoReadStore.
func (r *PostgresPhotoReader) GetPhoto(ctx context.Context, photoID int64) (*domain.Photo, error) {
	query := psql.Select(
		sm.Columns(photoColumns...),
		sm.From(photosTable),
		sm.Where(psql.Quote("id").EQ(psql.Arg(photoID))),
	)

	row, err := bob.One(ctx, r.pool.Reader(), query, scan.StructMapper[PhotoRow]())
	if err != nil {
		return nil, wrapPhotoError(err)
	}
	p := toPhoto(row)
	return &p, nil
}
