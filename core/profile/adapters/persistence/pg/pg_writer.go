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
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/stephenafamo/scan"
)

var (
	_ domain.ProfileWriteStore = (*PostgresProfileWriter)(nil)
	_ domain.ProfileWriteTx    = (*profileTx)(nil)
)

const lockColumns = "id, user_id, status, nickname, created_at, updated_at, submitted_at"

type (
	PostgresProfileWriter struct {
		pool db.ConnectionPool
	}

	profileTx struct {
		q db.Querier
	}
)

func NewPostgresProfileWriter(pool db.ConnectionPool) *PostgresProfileWriter {
	return &PostgresProfileWriter{pool: pool}
}

// WithTx implements ProfileWriteStore.
func (w *PostgresProfileWriter) WithTx(ctx context.Context, fn func(ctx context.Context, tx domain.ProfileWriteTx) error) error {
	return w.pool.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
		return fn(ctx, &profileTx{q: q})
	})
}

// TransitionStatus implements ProfileWriteStore.
func (w *PostgresProfileWriter) TransitionStatus(ctx context.Context, profileID int64, from, to domain.Status, at time.Time) (bool, error) {
	query := psql.Update(
		um.Table(profilesTable),
		um.SetCol("status").To(psql.Arg(string(to))),
		um.SetCol("updated_at").To(psql.Arg(at)),
		um.Where(psql.Quote("id").EQ(psql.Arg(profileID))),
		um.Where(psql.Quote("status").EQ(psql.Arg(string(from)))),
		um.Returning("id"),
	)
	_, err := bob.One(ctx, w.pool.Writer(), query, scan.SingleColumnMapper[int64])
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("transition profile %d to %s: %w", profileID, to, err)
	}
	return true, nil
}

// LockProfile implements ProfileWriteTx.
func (t *profileTx) LockProfile(ctx context.Context, profileID int64) (*domain.Profile, error) {
	query := psql.RawQuery(`SELECT `+lockColumns+` FROM `+profilesTable+` WHERE id = $1 FOR UPDATE`, profileID)
	row, err := bob.One(ctx, t.q, query, scan.StructMapper[ProfileRow]())
	if err != nil {
		return nil, wrapProfileError(err)
	}
	p := toProfile(row)
	return &p, nil
}

// ReadinessFacts implements ProfileWriteTx. It runs on the transaction so it
// sees photos processed up to the moment the lock was taken.
func (t *profileTx) ReadinessFacts(ctx context.Context, profileID int64) (domain.ReadinessFacts, error) {
	return readinessFacts(ctx, t.q, profileID)
}

// SetStatus implements ProfileWriteTx.
func (t *profileTx) SetStatus(ctx context.Context, profileID int64, status domain.Status, at time.Time) error {
	mods := []bob.Mod[*dialect.UpdateQuery]{
		um.Table(profilesTable),
		um.SetCol("status").To(psql.Arg(string(status))),
		um.SetCol("updated_at").To(psql.Arg(at)),
		um.Where(psql.Quote("id").EQ(psql.Arg(profileID))),
		um.Returning("id"),
	}
	if status == domain.StatusSubmitted {
		mods = append(mods, um.SetCol("submitted_at").To(psql.Arg(at)))
	}
	_, err := bob.One(ctx, t.q, psql.Update(mods...), scan.SingleColumnMapper[int64])
	return wrapProfileError(err)
}
