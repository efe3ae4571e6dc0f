package domain

import "aboba/modules/clock"

type (
	// Application owns profile readiness and the submission workflow.
	Application struct {
		reader    ProfileReadStore
		writer    ProfileWriteStore
		publisher EventPublisher
		clock     clock.Clock
	}

	Option func(*Application)
)

func WithClock(c clock.Clock) Option {
	return func(a *Application) {
		if c != nil {
			a.clock = c
		}
	}
}

func NewApp(reader ProfileReadStore, writer ProfileWriteStore, publisher EventPublisher, opts ...Option) *Application {
	app := &Application{
		reader:    reader,
		writer:    writer,
		publisher: publisher,
		clock:     clock.RealClockProvider(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app
}
