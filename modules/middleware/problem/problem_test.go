package problem

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestWrite_SetsStatusAndContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, NotFound("profile not found", WithCode("profiles.not_found")))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "profiles.not_found", body["code"])
	assert.Equal(t, "profile not found", body["detail"])
	assert.Equal(t, "Not Found", body["title"])
	assert.EqualValues(t, 404, body["status"])
}

func TestMarshalJSON_MergesExtensionsWithoutOverridingFields(t *testing.T) {
	p := BadRequest("not ready",
		WithCode("profiles.not_ready_to_submit"),
		WithExtension("reasons", []string{"photos.lt3", "prices.missing"}),
		WithExtension("status", "shadowed"),
	)

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, []any{"photos.lt3", "prices.missing"}, body["reasons"])
	assert.EqualValues(t, 400, body["status"])
}

func TestWrite_NilFallsBackToInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNew_UnknownStatusGetsGenericTitle(t *testing.T) {
	p := New(WithStatus(599), WithTitle(""))
	assert.Equal(t, "Unknown Error", p.Title)
}

func TestWith_AppendsInvalidParams(t *testing.T) {
	p := Invalid("media", "malformed request body", WithInvalidParam("mime", "unsupported"))
	p.With(WithInvalidParam("sizeBytes", "too large"))

	require.NotNil(t, p.Code)
	assert.Equal(t, "media.invalid", *p.Code)
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "Bad Request", p.Title)
	require.NotNil(t, p.InvalidParams)
	assert.Equal(t, []InvalidParam{
		{Name: "mime", Reason: "unsupported"},
		{Name: "sizeBytes", Reason: "too large"},
	}, *p.InvalidParams)
}

func TestSharedCodes(t *testing.T) {
	tests := []struct {
		name   string
		p      *Problem
		status int
		code   string
	}{
		{"unauthenticated", Unauthenticated("missing session"), http.StatusUnauthorized, CodeUnauthorized},
		{"server error", ServerError(), http.StatusInternalServerError, CodeInternal},
		{"rate limited", RateLimited(), http.StatusTooManyRequests, CodeRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.p.Status)
			require.NotNil(t, tt.p.Code)
			assert.Equal(t, tt.code, *tt.p.Code)
		})
	}
}

func TestWithTraceContext(t *testing.T) {
	assert.Nil(t, ServerError(WithTraceContext(context.Background())).TraceID)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	p := ServerError(WithTraceContext(ctx))
	require.NotNil(t, p.TraceID)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", *p.TraceID)
}
