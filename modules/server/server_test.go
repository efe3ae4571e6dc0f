package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tag(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("X-Chain", name)
			next.ServeHTTP(w, r)
		})
	}
}

type pingService struct{}

func (pingService) Register(mux *http.ServeMux) {
	mux.Handle("GET /ping", Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("X-Chain", "handler:"+r.Pattern)
		w.WriteHeader(http.StatusNoContent)
	}), tag("route-a"), nil, tag("route-b")))
}

func (pingService) Middlewares() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{tag("service")}
}

func TestServer_ComposesMiddlewaresInDeclarationOrder(t *testing.T) {
	srv, err := New("127.0.0.1", 8080,
		WithServices(pingService{}),
		WithGlobalMiddlewares(tag("global")),
	)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t,
		"global,service,route-a,route-b,handler:GET /ping",
		strings.Join(rec.Header().Values("X-Chain"), ","),
	)
}

func TestNew_RejectsBadPort(t *testing.T) {
	_, err := New("127.0.0.1", 0)
	assert.Error(t, err)
}
