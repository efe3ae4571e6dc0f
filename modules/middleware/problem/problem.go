// Package problem renders RFC 7807 problem documents in the shape of the
// Problem schema in the OpenAPI contract.
package problem

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Codes not owned by a single resource. Resource codes such as "media.busy"
// live next to the handlers that emit them.
const (
	CodeUnauthorized  = "auth.unauthorized"
	CodeInternal      = "internal.error"
	CodeRateLimited   = "rate_limited"
	CodeRouteNotFound = "route.not_found"
)

type Problem struct {
	Code          *string         `json:"code,omitempty"`
	Detail        *string         `json:"detail,omitempty"`
	Instance      *string         `json:"instance,omitempty"`
	InvalidParams *[]InvalidParam `json:"invalidParams,omitempty"`
	Status        int             `json:"status"`
	Title         string          `json:"title"`
	TraceID       *string         `json:"traceId,omitempty"`
	Type          *string         `json:"type,omitempty"`

	// Extensions are merged into the top-level object; they never shadow the fields above.
	Extensions map[string]any `json:"-"`
}

type InvalidParam struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type Option func(*Problem)

// New builds a 500 problem and applies opts over it.
func New(opts ...Option) *Problem {
	p := &Problem{
		Type:   strPtr("about:blank"),
		Status: http.StatusInternalServerError,
		Detail: strPtr("unhandled error"),
	}
	return p.With(opts...)
}

// With applies opts to p in order and returns p.
func (p *Problem) With(opts ...Option) *Problem {
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.Type == nil {
		p.Type = strPtr("about:blank")
	}
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
		if p.Title == "" {
			p.Title = "Unknown Error"
		}
	}
	return p
}

func Write(w http.ResponseWriter, p *Problem) {
	if p == nil {
		p = ServerError()
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func WithStatus(status int) Option {
	return func(p *Problem) { p.Status = status }
}

func WithTitle(title string) Option {
	return func(p *Problem) { p.Title = title }
}

func WithDetail(detail string) Option {
	return func(p *Problem) { p.Detail = strPtr(detail) }
}

func WithType(typ string) Option {
	return func(p *Problem) { p.Type = strPtr(typ) }
}

func WithCode(code string) Option {
	return func(p *Problem) { p.Code = strPtr(code) }
}

func WithTraceID(traceID string) Option {
	return func(p *Problem) { p.TraceID = strPtr(traceID) }
}

// WithTraceContext copies the trace id of the span in ctx, if there is one.
func WithTraceContext(ctx context.Context) Option {
	return func(p *Problem) {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			p.TraceID = strPtr(sc.TraceID().String())
		}
	}
}

func WithInvalidParam(name, reason string) Option {
	return func(p *Problem) {
		var params []InvalidParam
		if p.InvalidParams != nil {
			params = *p.InvalidParams
		}
		params = append(params, InvalidParam{Name: name, Reason: reason})
		p.InvalidParams = &params
	}
}

func WithExtension(key string, value any) Option {
	return func(p *Problem) {
		if p.Extensions == nil {
			p.Extensions = map[string]any{}
		}
		p.Extensions[key] = value
	}
}

func withStatus(status int, detail string, opts []Option) *Problem {
	return New(WithStatus(status), WithTitle(http.StatusText(status)), WithDetail(detail)).With(opts...)
}

func BadRequest(detail string, opts ...Option) *Problem {
	return withStatus(http.StatusBadRequest, detail, opts)
}

func Unauthorized(detail string, opts ...Option) *Problem {
	return withStatus(http.StatusUnauthorized, detail, opts)
}

func NotFound(detail string, opts ...Option) *Problem {
	return withStatus(http.StatusNotFound, detail, opts)
}

func MethodNotAllowed(detail string, opts ...Option) *Problem {
	return withStatus(http.StatusMethodNotAllowed, detail, opts)
}

func TooManyRequests(detail string, opts ...Option) *Problem {
	return withStatus(http.StatusTooManyRequests, detail, opts)
}

func Internal(detail string, opts ...Option) *Problem {
	return withStatus(http.StatusInternalServerError, detail, opts)
}

func Unavailable(detail string, opts ...Option) *Problem {
	return withStatus(http.StatusServiceUnavailable, detail, opts)
}

// Unauthenticated is the 401 every /v1/me route answers without a live session.
func Unauthenticated(detail string) *Problem {
	return Unauthorized(detail, WithCode(CodeUnauthorized))
}

// ServerError hides the cause; callers log it before writing.
func ServerError(opts ...Option) *Problem {
	return Internal("server error", WithCode(CodeInternal)).With(opts...)
}

func RateLimited() *Problem {
	return TooManyRequests(http.StatusText(http.StatusTooManyRequests), WithCode(CodeRateLimited))
}

// Invalid is the 400 for a request rejected against the API contract of resource.
func Invalid(resource, detail string, opts ...Option) *Problem {
	return BadRequest(detail, WithCode(resource+".invalid")).With(opts...)
}

func strPtr(s string) *string { return &s }

func (p Problem) MarshalJSON() ([]byte, error) {
	// plain has no methods, so json.Marshal does not come back here
	type plain Problem
	if len(p.Extensions) == 0 {
		return json.Marshal(plain(p))
	}
	base, err := json.Marshal(plain(p))
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	merged := make(map[string]any, len(fields)+len(p.Extensions))
	for k, v := range p.Extensions {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}
