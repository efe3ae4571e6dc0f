package rest

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"aboba/modules/api/serde"
)

const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

type (
	// Check reports whether one dependency is reachable.
	Check func(ctx context.Context) error

	HealthAPI struct {
		checks  map[string]Check
		timeout time.Duration
	}

	HealthResponse struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}

	HealthOption func(*HealthAPI)
)

func WithCheck(name string, c Check) HealthOption {
	return func(h *HealthAPI) {
		if c != nil {
			h.checks[name] = c
		}
	}
}

func WithCheckTimeout(d time.Duration) HealthOption {
	return func(h *HealthAPI) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func NewHealthAPI(opts ...HealthOption) *HealthAPI {
	h := &HealthAPI{checks: make(map[string]Check), timeout: 2 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *HealthAPI) Live(w http.ResponseWriter, _ *http.Request) {
	serde.WriteJSON(w, http.StatusOK, HealthResponse{Status: healthOK})
}

// Ready runs every check concurrently and answers 503 if any fails.
func (h *HealthAPI) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]string, len(h.checks))
		status  = healthOK
	)
	for name, check := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := check(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.WarnContext(ctx, "readiness check failed", slog.String("check", name), slog.Any("error", err))
				results[name] = healthDegraded
				status = healthDegraded
				return
			}
			results[name] = healthOK
		}()
	}
	wg.Wait()

	code := http.StatusOK
	if status != healthOK {
		code = http.StatusServiceUnavailable
	}
	serde.WriteJSON(w, code, HealthResponse{Status: status, Checks: results})
}
