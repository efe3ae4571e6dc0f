package rest

import (
	"net/http"

	"aboba/modules/server"
)

var _ server.RegistrableService = (*Routes)(nil)

type (
	// Routes mounts the profile and health endpoints. Health stays outside
	// the session chain so probes need no cookie.
	Routes struct {
		profiles    *ProfileAPI
		health      *HealthAPI
		routeChain  []func(http.Handler) http.Handler
		healthChain []func(http.Handler) http.Handler
	}

	RoutesOption func(*Routes)
)

func WithRouteMiddlewares(mws ...func(http.Handler) http.Handler) RoutesOption {
	return func(r *Routes) {
		r.routeChain = append(r.routeChain, mws...)
	}
}

func WithHealthMiddlewares(mws ...func(http.Handler) http.Handler) RoutesOption {
	return func(r *Routes) {
		r.healthChain = append(r.healthChain, mws...)
	}
}

func NewRoutes(profiles *ProfileAPI, health *HealthAPI, opts ...RoutesOption) *Routes {
	r := &Routes{profiles: profiles, health: health}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Routes) Register(mux *http.ServeMux) {
	if r.profiles != nil {
		mux.Handle("GET /v1/me/profiles/{id}/readiness", server.Chain(http.HandlerFunc(r.profiles.GetReadiness), r.routeChain...))
		mux.Handle("POST /v1/me/profiles/{id}/submit", server.Chain(http.HandlerFunc(r.profiles.SubmitProfile), r.routeChain...))
	}
	if r.health != nil {
		mux.Handle("GET /health/live", server.Chain(http.HandlerFunc(r.health.Live), r.healthChain...))
		mux.Handle("GET /health/ready", server.Chain(http.HandlerFunc(r.health.Ready), r.healthChain...))
	}
}

// Middlewares is empty: every middleware here is route scoped.
func (r *Routes) Middlewares() []func(http.Handler) http.Handler {
	return nil
}
