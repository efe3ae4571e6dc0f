package rest

import (
	"net/http"

	"aboba/modules/server"
)

var _ server.RegistrableService = (*Routes)(nil)

type (
	// Routes mounts MediaAPI on a ServeMux. Route middlewares wrap every
	// handler individually because the matched pattern is only known after
	// the mux has routed the request.
	Routes struct {
		api        *MediaAPI
		routeChain []func(http.Handler) http.Handler
	}

	RoutesOption func(*Routes)
)

// WithRouteMiddlewares appends per-route middlewares, outermost first.
func WithRouteMiddlewares(mws ...func(http.Handler) http.Handler) RoutesOption {
	return func(r *Routes) {
		r.routeChain = append(r.routeChain, mws...)
	}
}

func NewRoutes(api *MediaAPI, opts ...RoutesOption) *Routes {
	r := &Routes{api: api}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Routes) Register(mux *http.ServeMux) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, server.Chain(h, r.routeChain...))
	}
	handle("POST /v1/me/profiles/{id}/photos/upload-url", r.api.CreateUploadURL)
	handle("POST /v1/me/profiles/{id}/photos/confirm", r.api.ConfirmUpload)
	handle("GET /v1/me/profiles/{id}/photos", r.api.ListPhotos)
	handle("PATCH /v1/me/profiles/{id}/photos/{photoId}", r.api.PatchPhoto)
}

// Middlewares is empty: every middleware here is route scoped.
func (r *Routes) Middlewares() []func(http.Handler) http.Handler {
	return nil
}
