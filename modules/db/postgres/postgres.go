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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"aboba/modules/db"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stephenafamo/bob"

	"github.com/amacneil/dbmate/v2/pkg/dbmate"
	_ "github.com/amacneil/dbmate/v2/pkg/driver/postgres"
)

var _ db.ConnectionPool = (*PostgresConnectionPool)(nil)

type PostgresConnectionPool struct {
	writer bob.DB

	readers []bob.DB
	mu      sync.Mutex

	// primary is kept for dbmate, which opens its own connection
	primary       PoolConfig
	migrations    fs.FS
	migrationsDir string
}

// HealthCheck implements db.ConnectionPool.
func (p *PostgresConnectionPool) HealthCheck(ctx context.Context) error {
	_, err := p.writer.ExecContext(ctx, "SELECT 1")
	return err
}

// MigrateUp implements db.ConnectionPool. Missing databases are created.
func (p *PostgresConnectionPool) MigrateUp() error {
	m, err := p.migrator()
	if err != nil {
		return err
	}
	if err := m.CreateAndMigrate(); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// MigrateDown implements db.ConnectionPool.
func (p *PostgresConnectionPool) MigrateDown() error {
	m, err := p.migrator()
	if err != nil {
		return err
	}
	if err := m.Rollback(); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// GenerateMigration implements db.ConnectionPool. It writes to the local filesystem.
func (p *PostgresConnectionPool) GenerateMigration(dir, name string) error {
	m := dbmate.New(migrationURL(&p.primary))
	m.MigrationsDir = []string{dir}
	if err := m.NewMigration(name); err != nil {
		return fmt.Errorf("generate migration %q: %w", name, err)
	}
	return nil
}

func (p *PostgresConnectionPool) migrator() (*dbmate.DB, error) {
	if p.migrations == nil {
		return nil, errors.New("postgres: no migrations configured")
	}
	m := dbmate.New(migrationURL(&p.primary))
	m.FS = p.migrations
	m.MigrationsDir = []string{p.migrationsDir}
	m.AutoDumpSchema = false
	return m, nil
}

// migrationURL drops pgx-only parameters that lib/pq would forward to the server.
func migrationURL(cfg *PoolConfig) *url.URL {
	u := cfg.URL()
	q := u.Query()
	q.Del("pool_max_conns")
	u.RawQuery = q.Encode()
	return u
}

// Reader implements db.ConnectionPool.
//
// Many strategies exist for selecting one reader from the list:
// - Health-aware selection (cool-down & circuit breakers)
// - Power of two choices
// - Retry policy
// - Read-your-write
//
// Without any profiling/edge cases to justify implementing the more complex
// choices, here we first use a simpler approach first
func (p *PostgresConnectionPool) Reader() db.Querier {
	if len(p.readers) == 0 {
		return p.Writer()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.readers[rand.IntN(len(p.readers))]
}

// WithTimeoutTx implements db.ConnectionPool.
func (p *PostgresConnectionPool) WithTimeoutTx(ctx context.Context, timeout time.Duration, fn db.TxFn) error {
	ctx, stop := context.WithTimeout(ctx, timeout)
	defer stop()

	return p.WithTx(ctx, fn)
}

// WithTx implements db.ConnectionPool.
func (p *PostgresConnectionPool) WithTx(ctx context.Context, fn db.TxFn) error {
	// READ COMMITTED; confirm and patch serialize through SELECT ... FOR UPDATE
	return p.writer.RunInTx(ctx, &sql.TxOptions{
		ReadOnly: false,
	}, func(ctx context.Context, exec bob.Executor) error {
		// exec implements bob.Executor, which satisfies our db.Querier
		return fn(ctx, exec)
	})
}

// Shutdown implements db.ConnectionPool.
func (p *PostgresConnectionPool) Shutdown(_ context.Context) error {
	if p == nil {
		return nil
	}

	var errs []error

	if err := p.writer.Close(); err != nil {
		errs = append(errs, err)
	}

	for _, reader := range p.readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	// one flat join; joining in a loop nests every previous error
	return errors.Join(errs...)
}

// Writer implements db.ConnectionPool.
func (p *PostgresConnectionPool) Writer() db.Querier {
	return p.writer
}

// Primary returns the primary (writer) bob.DB instance.
// This is used for preparing write statements.
func (p *PostgresConnectionPool) Primary() *bob.DB {
	return &p.writer
}

// Replica returns a random replica bob.DB instance, or the primary if no replicas exist.
// This is used for preparing read statements.
func (p *PostgresConnectionPool) Replica() *bob.DB {
	if len(p.readers) == 0 {
		return &p.writer
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return &p.readers[rand.IntN(len(p.readers))]
}

func connString(cfg *PoolConfig) string {
	u := cfg.URL()
	slog.Debug("postgres pool", slog.String("url", u.Redacted()))
	return u.String()
}

func New(
	ctx context.Context,
	config *PostgresConfig,
	opts PostgresOptions,
) (*PostgresConnectionPool, error) {
	writer, err := initDBFromConfig(ctx, &config.WriteConfig, opts.WriterOptions...)
	if err != nil {
		return nil, fmt.Errorf("postgres primary: %w", err)
	}

	var readers []bob.DB
	for _, r := range config.ReadConfigs {
		reader, err := initDBFromConfig(ctx, &r, opts.ReaderOptions...)
		if err != nil {
			_ = writer.Close()
			for _, opened := range readers {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("postgres replica %s: %w", r.Host, err)
		}
		readers = append(readers, reader)
	}

	dir := opts.MigrationsDir
	if dir == "" {
		dir = "."
	}

	return &PostgresConnectionPool{
		writer:        writer,
		readers:       readers,
		primary:       config.WriteConfig,
		migrations:    opts.Migrations,
		migrationsDir: dir,
	}, nil
}

func initDBFromConfig(
	ctx context.Context,
	config *PoolConfig,
	opts ...PgxConfigOption,
) (bob.DB, error) {
	poolConfig, err := pgxpool.ParseConfig(connString(config))
	if err != nil {
		return bob.DB{}, err
	}

	for _, opt := range opts {
		if opt != nil {
			opt(poolConfig)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return bob.DB{}, err
	}
	return bob.NewDB(stdlib.OpenDBFromPool(pool)), nil
}
