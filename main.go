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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"aboba/migrations"
	"aboba/modules/appconfig"
	"aboba/modules/db/postgres"
	"aboba/modules/events"
	"aboba/modules/telemetry"

	"github.com/spf13/cobra"
)

func main() {
	// cancel the context when these signals occur
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer cancel()

	root := &cobra.Command{
		Use:           "aboba",
		Short:         "Photo ingestion API, worker and migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(apiCommand(), workerCommand(), migrateCommand())

	if err := root.ExecuteContext(ctx); err != nil {
		slog.ErrorContext(ctx, "command failed", slog.Any("error", err))
		cancel()
		os.Exit(1)
	}
}

// deps holds what every long running command needs. Close releases it in
// reverse order of acquisition.
type deps struct {
	cfg     *appconfig.Config
	pool    *postgres.PostgresConnectionPool
	closers []func(context.Context) error
}

func (rt *deps) onClose(fn func(context.Context) error) {
	rt.closers = append(rt.closers, fn)
}

func (rt *deps) Close(ctx context.Context) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](context.WithoutCancel(ctx)); err != nil {
			slog.ErrorContext(ctx, "shutdown error", slog.Any("error", err))
		}
	}
}

// noTelemetry is the role of one-shot commands.
const noTelemetry telemetry.Role = ""

// bootstrap loads configuration, installs the logger and opens the database.
// Long running commands pass their role; they also start telemetry and
// require a healthy primary. Migrations may run before the database exists.
func bootstrap(ctx context.Context, role telemetry.Role) (*deps, error) {
	longRunning := role != noTelemetry

	cfg, err := appconfig.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg)

	rt := &deps{cfg: cfg}

	if longRunning {
		otelShutdown, err := telemetry.Init(ctx, cfg.Otel, role)
		if err != nil {
			return nil, fmt.Errorf("telemetry not properly configured: %w", err)
		}
		rt.onClose(func(ctx context.Context) error { return otelShutdown(ctx) })
	}

	appName := postgres.WithApplicationName(cfg.Otel.ServiceNameFor(role))
	pool, err := postgres.New(ctx, &cfg.Postgres, postgres.PostgresOptions{
		WriterOptions: []postgres.PgxConfigOption{appName},
		// assuming writer connection does not pass through pgBouncer,
		// so we can apply server-side prepared statements
		ReaderOptions: []postgres.PgxConfigOption{
			appName,
			postgres.WithPgBouncerSimpleProtocol(),
		},
		Migrations:    migrations.FS,
		MigrationsDir: migrations.Dir,
	})
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("database: %w", err)
	}
	rt.pool = pool
	rt.onClose(pool.Shutdown)

	if !longRunning {
		return rt, nil
	}
	if err := pool.HealthCheck(ctx); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("database health check: %w", err)
	}
	return rt, nil
}

func setupLogger(cfg *appconfig.Config) {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.IsDev() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler).With(slog.String("env", cfg.Env)))
}

// newBus logs every domain event and forwards it to Kafka when brokers are set.
func newBus(rt *deps) *events.Bus {
	bus := events.NewBus()
	bus.Subscribe(events.Wildcard, events.LogSubscriber(slog.Default()))

	if rt.cfg.Kafka.Enabled() {
		w := events.NewKafkaWriter(rt.cfg.Kafka, slog.Default())
		bus.Subscribe(events.Wildcard, events.KafkaSink(w))
		rt.onClose(func(context.Context) error { return w.Close() })
		slog.Info("forwarding domain events to kafka",
			slog.Any("brokers", rt.cfg.Kafka.Brokers),
			slog.String("topic", rt.cfg.Kafka.Topic),
		)
	}
	return bus
}
