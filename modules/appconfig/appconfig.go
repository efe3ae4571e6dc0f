// Package appconfig loads the process configuration from the environment.
package appconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3store "aboba/core/media/adapters/blob/s3"
	"aboba/core/media/adapters/queue"
	media "aboba/core/media/domain"
	"aboba/core/media/worker"
	"aboba/modules/db/postgres"
	"aboba/modules/db/redis"
	"aboba/modules/events"
	"aboba/modules/middleware/ratelimit"
	"aboba/modules/server"
	"aboba/modules/telemetry"

	"github.com/caarlos0/env/v11"
)

// maxVariantTTL is the longest lifetime S3 accepts for a presigned GET.
const maxVariantTTL = 7 * 24 * time.Hour

type Config struct {
	Env      string `env:"ENV"       envDefault:"dev"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	HTTP server.Config `envPrefix:"HTTP_"`

	// --- core infra ----
	Redis    redis.RedisConfig       `envPrefix:"REDIS_"`
	Postgres postgres.PostgresConfig `envPrefix:"POSTGRES_"`
	S3       s3store.Config          `envPrefix:"S3_"`
	Kafka    events.KafkaConfig      `envPrefix:"KAFKA_"`

	// --- ingestion ----
	Media  media.Config  `envPrefix:"MEDIA_"`
	Queue  queue.Config  `envPrefix:"QUEUE_"`
	Worker worker.Config `envPrefix:"WORKER_"`

	// --- middlewares ----
	RateLimit ratelimit.RestHTTPConfig `envPrefix:"RATE_LIMIT_"`

	// --- otel ----
	// since it has special naming conventions, we do not use prefix here
	Otel telemetry.Config
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Level maps LogLevel onto slog; unknown names fall back to info.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func validate(c *Config) error {
	var errs []error
	if c.Media.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MEDIA_MAX_UPLOAD_BYTES must be positive"))
	}
	if c.Media.GrantTTL <= 0 {
		errs = append(errs, errors.New("MEDIA_GRANT_TTL must be positive"))
	}
	if c.Media.VariantTTL <= 0 || c.Media.VariantTTL > maxVariantTTL {
		errs = append(errs, fmt.Errorf("MEDIA_VARIANT_TTL must be within (0, %s]", maxVariantTTL))
	}
	if c.Media.MaxAttempts < 1 {
		errs = append(errs, errors.New("MEDIA_JOB_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be at least 1"))
	}
	if c.Worker.ReapInterval <= 0 {
		errs = append(errs, errors.New("WORKER_REAP_INTERVAL must be positive"))
	}
	if c.Worker.JobsPerSecond <= 0 {
		errs = append(errs, errors.New("WORKER_JOBS_PER_SECOND must be positive"))
	}
	if c.Worker.JPEGQuality < 1 || c.Worker.JPEGQuality > 100 {
		errs = append(errs, errors.New("WORKER_JPEG_QUALITY must be within [1, 100]"))
	}
	if c.Queue.Lease <= c.Worker.JobTimeout {
		errs = append(errs, errors.New("QUEUE_LEASE must exceed WORKER_JOB_TIMEOUT"))
	}
	if c.S3.OriginalBucket == "" || c.S3.DerivedBucket == "" {
		errs = append(errs, errors.New("S3 buckets must be set"))
	}
	if c.Env != "dev" && c.Postgres.WriteConfig.Password == "postgres" {
		errs = append(errs, fmt.Errorf("default postgres password is not allowed in %s", c.Env))
	}
	return errors.Join(errs...)
}
