package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aboba/core/profile/adapters/persistence/memory"
	"aboba/core/profile/domain"
	"aboba/modules/auth"
	"aboba/modules/clock"
	"aboba/modules/events"
	"aboba/modules/middleware"
	"aboba/modules/oapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerToken = "owner-token"
	otherToken = "other-token"
)

type fixture struct {
	mux       *http.ServeMux
	store     *memory.Store
	submitted []events.Event
}

func newFixture(t *testing.T, health *HealthAPI) *fixture {
	t.Helper()
	c := clock.NewManual(time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC))

	store := memory.NewStore()
	store.AddProfile(domain.Profile{ID: 1, UserID: 100, Nickname: "Mila"})
	store.AddProfile(domain.Profile{ID: 2, UserID: 200, Nickname: "Ada"})

	sessions := auth.NewMemoryStore()
	sessions.Add(ownerToken, 100, c.Now().Add(time.Hour))
	sessions.Add(otherToken, 200, c.Now().Add(time.Hour))

	f := &fixture{store: store}
	bus := events.NewBus()
	bus.Subscribe(domain.EventProfileSubmitted, func(_ context.Context, evt events.Event) error {
		f.submitted = append(f.submitted, evt)
		return nil
	})

	app := domain.NewApp(store, store, bus, domain.WithClock(c))
	routes := NewRoutes(NewProfileAPI(app), health, WithRouteMiddlewares(
		auth.Session(sessions, c),
		middleware.OpenAPIValidation(oapi.FS, oapi.Path, middleware.ProblemValidationErrorHandler("profiles"), middleware.ProblemSpecLoadErrorHandler),
	))
	f.mux = http.NewServeMux()
	routes.Register(f.mux)
	return f
}

func (f *fixture) do(token, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestReadinessThenSubmit(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(ownerToken, http.MethodGet, "/v1/me/profiles/1/readiness")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var readiness ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &readiness))
	assert.False(t, readiness.OK)
	assert.Equal(t, []string{domain.ReasonPhotosLT3, domain.ReasonPricesMissing}, readiness.Reasons)

	rec = f.do(ownerToken, http.MethodPost, "/v1/me/profiles/1/submit")
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	body := decodeProblem(t, rec)
	assert.Equal(t, "profiles.not_ready_to_submit", body["code"])
	assert.Equal(t, []any{domain.ReasonPhotosLT3, domain.ReasonPricesMissing}, body["reasons"])

	f.store.SetProcessedPhotos(1, 3)
	f.store.AddPrices(1, 1)

	rec = f.do(ownerToken, http.MethodGet, "/v1/me/profiles/1/readiness")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &readiness))
	assert.True(t, readiness.OK)
	assert.Equal(t, []string{}, readiness.Reasons)

	rec = f.do(ownerToken, http.MethodPost, "/v1/me/profiles/1/submit")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var submit SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submit))
	assert.Equal(t, string(domain.StatusPendingModeration), submit.Status)
	assert.Len(t, f.submitted, 1)

	rec = f.do(ownerToken, http.MethodPost, "/v1/me/profiles/1/submit")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "profiles.invalid_state", decodeProblem(t, rec)["code"])
	assert.Len(t, f.submitted, 1)
}

func TestProfileRoutes_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		method string
		path   string
		status int
		code   string
	}{
		{"no session", "", http.MethodGet, "/v1/me/profiles/1/readiness", http.StatusUnauthorized, "auth.unauthorized"},
		{"foreign readiness", otherToken, http.MethodGet, "/v1/me/profiles/1/readiness", http.StatusNotFound, "profiles.not_found"},
		{"foreign submit", otherToken, http.MethodPost, "/v1/me/profiles/1/submit", http.StatusNotFound, "profiles.not_found"},
		{"missing profile", ownerToken, http.MethodGet, "/v1/me/profiles/77/readiness", http.StatusNotFound, "profiles.not_found"},
		{"non numeric id", ownerToken, http.MethodGet, "/v1/me/profiles/abc/readiness", http.StatusBadRequest, "profiles.invalid_id"},
		{"zero id", ownerToken, http.MethodPost, "/v1/me/profiles/0/submit", http.StatusBadRequest, "profiles.invalid_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := f.do(tt.token, tt.method, tt.path)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeProblem(t, rec)["code"])
		})
	}
}

func TestHealth(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	t.Run("live needs no session", func(t *testing.T) {
		f := newFixture(t, NewHealthAPI(WithCheck("db", down)))
		rec := f.do("", http.MethodGet, "/health/live")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("ready when every check passes", func(t *testing.T) {
		f := newFixture(t, NewHealthAPI(WithCheck("db", healthy), WithCheck("redis", healthy)))
		rec := f.do("", http.MethodGet, "/health/ready")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","checks":{"db":"ok","redis":"ok"}}`, rec.Body.String())
	})

	t.Run("degraded when one check fails", func(t *testing.T) {
		f := newFixture(t, NewHealthAPI(WithCheck("db", healthy), WithCheck("s3", down)))
		rec := f.do("", http.MethodGet, "/health/ready")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status":"degraded","checks":{"db":"ok","s3":"degraded"}}`, rec.Body.String())
	})

	t.Run("slow check times out", func(t *testing.T) {
		slow := func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}
		f := newFixture(t, NewHealthAPI(WithCheck("redis", slow), WithCheckTimeout(10*time.Millisecond)))
		rec := f.do("", http.MethodGet, "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestProblemFromDomainError_Unknown(t *testing.T) {
	p := ProblemFromDomainError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, p.Status)
	require.NotNil(t, p.Code)
	assert.Equal(t, "internal.error", *p.Code)
}
