package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"aboba/core/profile/domain"
	"aboba/modules/db"

	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/scan"
)

var _ domain.ProfileReadStore = (*PostgresProfileReader)(nil)

type (
	PostgresProfileReader struct {
		pool db.ReaderConnectionManager

		// every media request checks ownership, so it is prepared once on the primary
		ownedStmt bob.QueryStmt[ownerArgs, int64, []int64]
	}

	ownerArgs struct {
		ID     int64 `db:"id"`
		UserID int64 `db:"user_id"`
	}
)

// NewPostgresProfileReader prepares the ownership check on the primary and
// sends readiness reads to a replica.
func NewPostgresProfileReader(ctx context.Context, pool db.ConnectionManager) (*PostgresProfileReader, error) {
	primary, ok := pool.Writer().(bob.DB)
	if !ok {
		return nil, fmt.Errorf("profile reader: writer is %T, want bob.DB", pool.Writer())
	}

	// SELECT id FROM profiles WHERE id = :id AND user_id = :user_id
	ownedQuery := psql.Select(
		sm.Columns("id"),
		sm.From(profilesTable),
		sm.Where(psql.Quote("id").EQ(bob.Named("id"))),
		sm.Where(psql.Quote("user_id").EQ(bob.Named("user_id"))),
	)
	ownedStmt, err := bob.PrepareQuery[ownerArgs](ctx, primary, ownedQuery, scan.SingleColumnMapper[int64])
	if err != nil {
		return nil, fmt.Errorf("prepare profile ownership: %w", err)
	}

	return &PostgresProfileReader{pool: pool, ownedStmt: ownedStmt}, nil
}

// IsProfileOwnedBy implements ProfileReadStore. It also serves the media
// context's ownership port.
func (r *PostgresProfileReader) IsProfileOwnedBy(ctx context.Context, profileID, userID int64) (bool, error) {
	_, err := r.ownedStmt.One(ctx, ownerArgs{ID: profileID, UserID: userID})
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("profile ownership %d: %w", profileID, err)
	}
	return true, nil
}

// ReadinessFacts implements ProfileReadStore.
func (r *PostgresProfileReader) ReadinessFacts(ctx context.Context, profileID int64) (domain.ReadinessFacts, error) {
	return readinessFacts(ctx, r.pool.Reader(), profileID)
}
