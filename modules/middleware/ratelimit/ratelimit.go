package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"aboba/modules/middleware/problem"
	rl "aboba/modules/ratelimit"
)

type (
	Pattern string
	method  string

	// KeyFunc names the caller of a request; an empty Key means "unknown caller".
	KeyFunc func(*http.Request) rl.Key

	RouteInfoFunc func(*http.Request) RouteInfo

	RouteInfo struct {
		ID     Pattern
		Method string
		Path   string
	}

	Policy struct {
		Limiter rl.RateLimiter
		KeyFn   KeyFunc
	}

	// RuntimePolicy is a parsed RestHTTPConfig. Lookup order is the
	// pattern+method rule, then the method default, then the catch-all default.
	RuntimePolicy struct {
		policyMap             map[Pattern]map[method]Policy
		defaultPolicyByMethod map[method]Policy
		defaultPolicy         *Policy

		AllowIfNoMatch      bool
		AllowIfNoIdentifier bool

		RouteInfoFn RouteInfoFunc
	}
)

type policySource string

const (
	policySourceExplicit      policySource = "explicit"
	policySourceDefaultMethod policySource = "default_method"
	policySourceDefaultAll    policySource = "default"
)

func normalizeMethod(m string) method {
	return method(strings.ToUpper(m))
}

func normalizePattern(p string) Pattern {
	pat := Pattern(strings.TrimSuffix(p, "/"))
	if pat == "" {
		return "/"
	}
	return pat
}

// scope keeps counters of different routes apart: every limiter built by
// one factory writes to the same counter namespace.
func (ri RouteInfo) scope() string {
	return string(normalizeMethod(ri.Method)) + " " + string(ri.ID)
}

func (p *RuntimePolicy) findPolicy(ri RouteInfo) (Policy, policySource, bool) {
	m := normalizeMethod(ri.Method)
	if px, ok := p.policyMap[ri.ID][m]; ok {
		return px, policySourceExplicit, true
	}
	if px, ok := p.defaultPolicyByMethod[m]; ok && m != "" {
		return px, policySourceDefaultMethod, true
	}
	if p.defaultPolicy != nil {
		return *p.defaultPolicy, policySourceDefaultAll, true
	}
	return Policy{}, "", false
}

func buildPolicy(factory rl.LimiterFactory, rule EndpointRule, keyStrategies map[KeyStrategyId]KeyFunc) (Policy, error) {
	ks, ok := keyStrategies[rule.KeyStrategy]
	if !ok {
		return Policy{}, fmt.Errorf("no such key strategy %q", rule.KeyStrategy)
	}
	return Policy{Limiter: factory(rule.Limit, rule.Window), KeyFn: ks}, nil
}

// ParsePolicy compiles cfg. Route patterns are the paths of the ServeMux
// patterns the middleware is mounted on, without the method.
func ParsePolicy(
	factory rl.LimiterFactory,
	cfg *RestHTTPConfig,
	routeFn RouteInfoFunc,
	keyStrategies map[KeyStrategyId]KeyFunc,
) (*RuntimePolicy, error) {
	rtp := &RuntimePolicy{
		policyMap:           make(map[Pattern]map[method]Policy),
		AllowIfNoIdentifier: cfg.AllowIfNoIdentifier,
		AllowIfNoMatch:      cfg.AllowIfNoMatch,
		RouteInfoFn:         routeFn,
	}

	// the default only counts as configured once it can be enforced
	if def := cfg.DefaultPolicy; def.Window > 0 && def.KeyStrategy != "" {
		px, err := buildPolicy(factory, def, keyStrategies)
		if err != nil {
			return nil, fmt.Errorf("ratelimit parse policy: default: %w", err)
		}
		if def.Method != "" {
			rtp.defaultPolicyByMethod = map[method]Policy{normalizeMethod(def.Method): px}
		} else {
			rtp.defaultPolicy = &px
		}
	}

	for _, r := range cfg.Routes {
		pat := normalizePattern(r.Pattern)
		byMethod, ok := rtp.policyMap[pat]
		if !ok {
			byMethod = make(map[method]Policy, len(r.EndpointRules))
			rtp.policyMap[pat] = byMethod
		}
		for _, rule := range r.EndpointRules {
			m := normalizeMethod(rule.Method)
			if _, dup := byMethod[m]; dup {
				return nil, fmt.Errorf("ratelimit parse policy: duplicate method %s on pattern %s", m, pat)
			}
			px, err := buildPolicy(factory, rule, keyStrategies)
			if err != nil {
				return nil, fmt.Errorf("ratelimit parse policy: %s %s: %w", m, pat, err)
			}
			byMethod[m] = px
		}
	}
	return rtp, nil
}

func NewRateLimitMiddleware(p *RuntimePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ri := p.RouteInfoFn(r)
			log := slog.With(
				slog.String("middleware", "rate_limiter"),
				slog.String("url", r.URL.Path),
				slog.Any("route_info", ri),
			)

			if ri.Method == "" {
				log.Error("no method found")
				problem.Write(w, problem.MethodNotAllowed("method not allowed"))
				return
			}

			px, src, ok := p.findPolicy(ri)
			if !ok {
				if ri.ID != "" {
					log.Warn("no rate limit policy found")
				}
				if p.AllowIfNoMatch {
					next.ServeHTTP(w, r)
					return
				}
				problem.Write(w, problem.RateLimited())
				return
			}
			if src != policySourceExplicit {
				log.Debug("using default rate limit policy", slog.String("policy_source", string(src)))
			}

			var key rl.Key
			if px.KeyFn != nil {
				key = px.KeyFn(r)
			}
			if key == "" {
				if p.AllowIfNoIdentifier {
					next.ServeHTTP(w, r)
					return
				}
				log.Warn("no rate limit key for request")
				problem.Write(w, problem.RateLimited())
				return
			}

			result, err := px.Limiter.Allow(r.Context(), key.Scoped(ri.scope()))
			if err != nil {
				log.Error("rate limit error", slog.Any("error", err))
				problem.Write(w, problem.ServerError())
				return
			}

			// handlers may set these headers too; ours are applied last
			w = &rateLimitHeaderWriter{ResponseWriter: w, result: result}

			if !result.Allowed {
				log.Debug("rate limited")
				if s := result.RetryAfterSeconds(); s > 0 {
					w.Header().Set("Retry-After", strconv.FormatInt(s, 10))
				}
				problem.Write(w, problem.RateLimited())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type rateLimitHeaderWriter struct {
	http.ResponseWriter
	result  rl.Result
	written bool
}

func (w *rateLimitHeaderWriter) setHeaders() {
	if w.written {
		return
	}
	w.written = true
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(w.result.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(w.result.Remaining, 10))
	h.Set("X-RateLimit-Window-Seconds", strconv.FormatInt(int64(w.result.Window.Seconds()), 10))
	h.Set("X-RateLimit-Reset-Seconds", strconv.FormatInt(int64(w.result.WindowResetIn.Seconds()), 10))
}

func (w *rateLimitHeaderWriter) WriteHeader(statusCode int) {
	w.setHeaders()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *rateLimitHeaderWriter) Write(p []byte) (int, error) {
	w.setHeaders()
	return w.ResponseWriter.Write(p)
}

func (w *rateLimitHeaderWriter) Flush() {
	w.setHeaders()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RemoteIpKeyFunc keys on the last X-Forwarded-For hop (the one appended by
// our own proxy), falling back to the connection address.
func RemoteIpKeyFunc(r *http.Request) rl.Key {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if ip := strings.TrimSpace(ips[len(ips)-1]); ip != "" {
			return rl.Key(ip)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return rl.Key(r.RemoteAddr)
	}
	return rl.Key(host)
}

// SessionKeyFunc keys on a digest of the session cookie so raw tokens never reach the counter store.
func SessionKeyFunc(cookieName string) KeyFunc {
	return func(r *http.Request) rl.Key {
		c, err := r.Cookie(cookieName)
		if err != nil || c.Value == "" {
			return ""
		}
		sum := sha256.Sum256([]byte(c.Value))
		return rl.Key("sid:" + hex.EncodeToString(sum[:8]))
	}
}

// SessionOrIpKeyFunc keys on the session when the request carries one and on
// the client address otherwise, so anonymous callers share a per-IP budget.
func SessionOrIpKeyFunc(cookieName string) KeyFunc {
	session := SessionKeyFunc(cookieName)
	return func(r *http.Request) rl.Key {
		if k := session(r); k != "" {
			return k
		}
		if ip := RemoteIpKeyFunc(r); ip != "" {
			return "ip:" + ip
		}
		return ""
	}
}

// PatternRouteInfo reads the pattern the ServeMux matched. It only works for
// middlewares mounted per route, after the mux has routed the request.
func PatternRouteInfo(r *http.Request) RouteInfo {
	id := Pattern(r.Pattern)
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		id = Pattern(path)
	}
	if id == "" {
		id = Pattern(r.URL.Path)
	}
	return RouteInfo{
		ID:     id,
		Method: r.Method,
		Path:   r.URL.Path,
	}
}
