package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

// ErrMalformedToken is returned when the Authorization header is present
// but the token cannot be parsed as a JWT at all (maps to 400, distinct
// from an otherwise well-formed but invalid/expired token, which maps to 401).
var ErrMalformedToken = errors.New("malformed bearer token")

// unauthenticatedSentinelUID is returned, instead of an error, when no
// Authorization header is present at all — so that public/read-only
// endpoints keep working without credentials while authenticated ones
// still enforce their own @authorize check downstream.
const unauthenticatedSentinelUID = ""

// JWKTokenConfig configures the JWK-based JWT auth module.
type JWKTokenConfig struct {
	JWKSURL        string
	UserIDClaim    string
	UserNameClaim  string
	RequiredClaims []string
}

// JWKToken authenticates bearer JWTs by verifying their signature against a
// JWK set fetched (and cached for an hour) from a configured URL.
type JWKToken struct {
	cfg   JWKTokenConfig
	cache *jwkCache
	fetch func(url string) (*keyfunc.JWKS, error)
	nowFn func() time.Time
}

// NewJWKToken constructs a JWKToken module.
func NewJWKToken(cfg JWKTokenConfig) *JWKToken {
	return &JWKToken{
		cfg:   cfg,
		cache: newJWKCache(),
		fetch: func(url string) (*keyfunc.JWKS, error) {
			return keyfunc.Get(url, keyfunc.Options{})
		},
		nowFn: time.Now,
	}
}

// Authenticate implements Module.
func (m *JWKToken) Authenticate(r *http.Request) (Tuple, error) {
	raw := bearerToken(r)
	if raw == "" {
		// No credentials supplied at all: return the unauthenticated
		// sentinel rather than an error, so public endpoints keep working.
		return Tuple{UserID: unauthenticatedSentinelUID}, nil
	}

	jwks, err := m.cache.get(m.cfg.JWKSURL, m.fetch)
	if err != nil {
		return Tuple{}, ErrUnauthenticated
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, jwks.Keyfunc)
	if err != nil {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorMalformed != 0 {
			return Tuple{}, ErrMalformedToken
		}
		return Tuple{}, ErrUnauthenticated
	}
	if !token.Valid {
		return Tuple{}, ErrUnauthenticated
	}

	for _, c := range m.cfg.RequiredClaims {
		if _, ok := claims[c]; !ok {
			return Tuple{}, ErrUnauthenticated
		}
	}

	uid, _ := claims[m.cfg.UserIDClaim].(string)
	uname, _ := claims[m.cfg.UserNameClaim].(string)
	if uid == "" {
		return Tuple{}, ErrUnauthenticated
	}

	return Tuple{UserID: uid, UserName: uname, Token: raw}, nil
}
