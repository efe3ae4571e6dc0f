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

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"aboba/modules/db"

	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/scan"
)

var _ SessionStore = (*PostgresSessionStore)(nil)

// PostgresSessionStore reads the sessions table through the primary, so a
// freshly issued session is visible immediately.
type PostgresSessionStore struct {
	pool db.ConnectionPool
}

func NewPostgresSessionStore(pool db.ConnectionPool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

func (s *PostgresSessionStore) LookupSession(ctx context.Context, tokenHash string, now time.Time) (int64, error) {
	query := psql.Select(
		sm.Columns("user_id"),
		sm.From("sessions"),
		sm.Where(psql.Quote("token_hash").EQ(psql.Arg(tokenHash))),
		sm.Where(psql.Quote("revoked_at").IsNull()),
		sm.Where(psql.Quote("expires_at").GT(psql.Arg(now))),
	)
	userID, err := bob.One(ctx, s.pool.Writer(), query, scan.SingleColumnMapper[int64])
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoSession
	}
	if err != nil {
		return 0, fmt.Errorf("lookup session: %w", err)
	}
	return userID, nil
}
