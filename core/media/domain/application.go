package domain

import (
	"time"

	"aboba/modules/clock"
)

type (
	// Application is the Ingestion Service.
	Application struct {
		profiles ProfileOwnership
		reader   PhotoReadStore
		writer   PhotoWriteStore
		blobs    BlobStore
		queue    JobQueue
		clock    clock.Clock

		cfg Config
	}

	Config struct {
		MaxUploadBytes     int64         `env:"MAX_UPLOAD_BYTES"     envDefault:"26214400"`
		GrantTTL           time.Duration `env:"GRANT_TTL"            envDefault:"600s"`
		VariantTTL         time.Duration `env:"VARIANT_TTL"          envDefault:"600s"`
		MaxAttempts        int           `env:"JOB_MAX_ATTEMPTS"     envDefault:"3"`
		AllocationAttempts int           `env:"ALLOCATION_ATTEMPTS"  envDefault:"8"`
	}

	Option func(*Application)
)

func DefaultConfig() Config {
	return Config{
		MaxUploadBytes:     MaxUploadBytes,
		GrantTTL:           DefaultGrantTTL,
		VariantTTL:         DefaultVariantTTL,
		MaxAttempts:        DefaultMaxAttempts,
		AllocationAttempts: 8,
	}
}

func WithConfig(cfg Config) Option {
	return func(a *Application) {
		a.cfg = cfg
	}
}

func WithClock(c clock.Clock) Option {
	return func(a *Application) {
		if c != nil {
			a.clock = c
		}
	}
}

func NewApp(
	profiles ProfileOwnership,
	reader PhotoReadStore,
	writer PhotoWriteStore,
	blobs BlobStore,
	queue JobQueue,
	opts ...Option,
) *Application {
	app := &Application{
		profiles: profiles,
		reader:   reader,
		writer:   writer,
		blobs:    blobs,
		queue:    queue,
		clock:    clock.RealClockProvider(),
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	if app.cfg.AllocationAttempts <= 0 {
		app.cfg.AllocationAttempts = 1
	}
	if app.cfg.MaxAttempts <= 0 {
		app.cfg.MaxAttempts = DefaultMaxAttempts
	}
	return app
}
