package server

import (
	"net/http"
	"time"
)

// RegistrableService mounts its own routes on the server mux and contributes
// middlewares that wrap the whole mux.
type RegistrableService interface {
	Register(mux *http.ServeMux)
	Middlewares() []func(http.Handler) http.Handler
}

type Config struct {
	Host         string        `env:"HOST"          envDefault:"0.0.0.0"`
	Port         int           `env:"PORT"          envDefault:"8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT"  envDefault:"10s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
}

// Chain wraps h so that the first middleware is the outermost. Nil entries are skipped.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}
