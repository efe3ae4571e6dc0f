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
	"time"

	"aboba/core/profile/domain"
	"aboba/modules/db"

	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/scan"
)

const profilesTable = "profiles"

var profileColumns = []any{"id", "user_id", "status", "nickname", "created_at", "updated_at", "submitted_at"}

type (
	// ProfileRow is the persistence entity shape of profiles.
	ProfileRow struct {
		ID          int64          `db:"id"`
		UserID      int64          `db:"user_id"`
		Status      string         `db:"status"`
		Nickname    sql.NullString `db:"nickname"`
		CreatedAt   time.Time      `db:"created_at"`
		UpdatedAt   time.Time      `db:"updated_at"`
		SubmittedAt sql.NullTime   `db:"submitted_at"`
	}

	readinessRow struct {
		Nickname        sql.NullString `db:"nickname"`
		ProcessedPhotos int            `db:"processed_photos"`
		Prices          int            `db:"prices"`
	}
)

// readinessSQL counts what submission requires in one round trip. Only
// processed photos count.
const readinessSQL = `SELECT p.nickname,
	(SELECT COUNT(*) FROM profile_photos ph WHERE ph.profile_id = p.id AND ph.processing_state = 'processed') AS processed_photos,
	(SELECT COUNT(*) FROM profile_prices pr WHERE pr.profile_id = p.id) AS prices
FROM ` + profilesTable + ` p
WHERE p.id = $1`

func toProfile(row ProfileRow) domain.Profile {
	p := domain.Profile{
		ID:        row.ID,
		UserID:    row.UserID,
		Status:    domain.Status(row.Status),
		Nickname:  row.Nickname.String,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.SubmittedAt.Valid {
		at := row.SubmittedAt.Time
		p.SubmittedAt = &at
	}
	return p
}

func readinessFacts(ctx context.Context, q db.Querier, profileID int64) (domain.ReadinessFacts, error) {
	row, err := bob.One(ctx, q, psql.RawQuery(readinessSQL, profileID), scan.StructMapper[readinessRow]())
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ReadinessFacts{}, nil
	}
	if err != nil {
		return domain.ReadinessFacts{}, fmt.Errorf("readiness facts %d: %w", profileID, err)
	}
	return domain.ReadinessFacts{
		Exists:          true,
		Nickname:        row.Nickname.String,
		ProcessedPhotos: row.ProcessedPhotos,
		Prices:          row.Prices,
	}, nil
}

// wrapProfileError centralizes mapping of DB errors to domain errors.
func wrapProfileError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrProfileNotFound
	}
	return err
}
