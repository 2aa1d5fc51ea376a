package auth

import (
	"log/slog"
	"net/http"
)

// DefaultUserID and DefaultUserName are used by the noop module when the
// request supplies no user_id query parameter.
const (
	DefaultUserID   = "00000000-0000-0000-0000-000000000000"
	DefaultUserName = "noop-user"
)

// Noop is a development-only auth module that trusts an optional
// ?user_id= query parameter (or a fixed default) and disables ownership
// checks entirely. It logs a warning on every call so it is never
// mistaken for a real auth boundary in logs.
type Noop struct{}

// Authenticate implements Module.
func (Noop) Authenticate(r *http.Request) (Tuple, error) {
	slog.Warn("using noop auth module — all requests are trusted, do not use in production")
	uid := r.URL.Query().Get("user_id")
	if uid == "" {
		uid = DefaultUserID
	}
	return Tuple{
		UserID:          uid,
		UserName:        DefaultUserName,
		SkipUserIDCheck: true,
	}, nil
}

// NoopWithToken behaves like Noop but also captures the bearer token, so
// downstream components (e.g. the MCP header injector) have something to
// propagate even when no real authentication takes place.
type NoopWithToken struct{}

// Authenticate implements Module.
func (NoopWithToken) Authenticate(r *http.Request) (Tuple, error) {
	slog.Warn("using noop-with-token auth module — all requests are trusted, do not use in production")
	uid := r.URL.Query().Get("user_id")
	if uid == "" {
		uid = DefaultUserID
	}
	return Tuple{
		UserID:          uid,
		UserName:        DefaultUserName,
		SkipUserIDCheck: true,
		Token:           bearerToken(r),
	}, nil
}
