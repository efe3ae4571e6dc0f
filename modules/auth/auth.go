// Package auth resolves the caller of a request from its session cookie.
//
// Sessions are issued elsewhere; this package only reads them. The cookie
// carries a random token and the store keeps its SHA-256 hex digest.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"aboba/modules/clock"
	"aboba/modules/middleware/problem"
)

const CookieName = "sid"

var ErrNoSession = errors.New("auth: no active session")

// SessionStore looks up the user of a live session.
type SessionStore interface {
	// LookupSession returns ErrNoSession unless a session with tokenHash exists,
	// is not revoked and expires after now.
	LookupSession(ctx context.Context, tokenHash string, now time.Time) (userID int64, err error)
}

type callerKey struct{}

// HashToken returns the stored form of a raw session token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func WithCallerID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, callerKey{}, userID)
}

// CallerID returns the user resolved by Session.
func CallerID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(callerKey{}).(int64)
	return id, ok
}

// Session rejects requests without a live session with 401 auth.unauthorized
// and stores the caller id in the request context otherwise.
func Session(store SessionStore, c clock.Clock) func(http.Handler) http.Handler {
	if c == nil {
		c = clock.RealClockProvider()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(CookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w)
				return
			}

			userID, err := store.LookupSession(r.Context(), HashToken(cookie.Value), c.Now())
			if err != nil {
				if !errors.Is(err, ErrNoSession) {
					slog.ErrorContext(r.Context(), "session lookup failed", slog.Any("error", err))
				}
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCallerID(r.Context(), userID)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	problem.Write(w, problem.Unauthenticated("authentication required"))
}
