package ratelimit

import (
	"time"
)

type KeyStrategyId string

const (
	RemoteIpKeyStrategy    KeyStrategyId = "remote_ip"
	SessionKeyStrategy     KeyStrategyId = "session"
	SessionOrIpKeyStrategy KeyStrategyId = "session_or_ip"
)

const (
	fallbackLimit  int64 = 10000
	fallbackWindow       = time.Minute
)

// Routes are matched by their ServeMux pattern, e.g. "POST /v1/me/profiles/{id}/photos/confirm"
// is configured as PATTERN=/v1/me/profiles/{id}/photos/confirm with METHOD=POST.
type (
	RestHTTPConfig struct {
		Routes              []Route      `envPrefix:"ROUTE_"`
		DefaultPolicy       EndpointRule `envPrefix:"DEFAULT_"`
		AllowIfNoMatch      bool         `env:"ALLOW_IF_NO_MATCH"`
		AllowIfNoIdentifier bool         `env:"ALLOW_IF_NO_ID"`
	}

	Route struct {
		Pattern       string         `env:"PATTERN"`
		EndpointRules []EndpointRule `envPrefix:"POLICY_"`
	}

	EndpointRule struct {
		Method      string        `env:"METHOD"`
		Limit       int64         `env:"LIMIT" envDefault:"10000"`
		Window      time.Duration `env:"WINDOW"`
		KeyStrategy KeyStrategyId `env:"KEY_STRATEGY"`
	}
)

// DefaultRoutes are the per-session budgets of the /v1/me routes. Upload URL
// minting and confirmation touch object storage, so they get the tightest limits.
func DefaultRoutes() []Route {
	rule := func(m string, limit int64) []EndpointRule {
		return []EndpointRule{{Method: m, Limit: limit, Window: time.Minute, KeyStrategy: SessionOrIpKeyStrategy}}
	}
	return []Route{
		{Pattern: "/v1/me/profiles/{id}/photos/upload-url", EndpointRules: rule("POST", 30)},
		{Pattern: "/v1/me/profiles/{id}/photos/confirm", EndpointRules: rule("POST", 30)},
		{Pattern: "/v1/me/profiles/{id}/photos", EndpointRules: rule("GET", 120)},
		{Pattern: "/v1/me/profiles/{id}/photos/{photoId}", EndpointRules: rule("PATCH", 60)},
		{Pattern: "/v1/me/profiles/{id}/readiness", EndpointRules: rule("GET", 120)},
		{Pattern: "/v1/me/profiles/{id}/submit", EndpointRules: rule("POST", 10)},
	}
}

// OrDefaults fills in DefaultRoutes when no route was configured, and a
// catch-all per-IP default when none was configured either.
func (c RestHTTPConfig) OrDefaults() RestHTTPConfig {
	if len(c.Routes) == 0 {
		c.Routes = DefaultRoutes()
	}
	if c.DefaultPolicy.Window <= 0 || c.DefaultPolicy.KeyStrategy == "" {
		c.DefaultPolicy = EndpointRule{
			Limit:       fallbackLimit,
			Window:      fallbackWindow,
			KeyStrategy: RemoteIpKeyStrategy,
		}
	}
	return c
}
