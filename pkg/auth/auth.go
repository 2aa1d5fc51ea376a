// Package auth provides the gateway's pluggable authentication modules.
// Each module implements Module.Authenticate, producing a Tuple from an
// inbound HTTP request. Modules are composed explicitly at Services
// construction time (pkg/services) rather than selected through a global
// registry, per the "explicit Services context" design note.
package auth

import "net/http"

// Tuple is the result of authenticating one request.
type Tuple struct {
	UserID          string
	UserName        string
	SkipUserIDCheck bool
	Token           string
}

// Module authenticates an inbound request and returns an AuthTuple.
type Module interface {
	Authenticate(r *http.Request) (Tuple, error)
}

// bearerToken extracts the bearer token from the Authorization header.
// Returns "" if the header is absent or not a Bearer scheme.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return ""
	}
	return h[len(prefix):]
}
