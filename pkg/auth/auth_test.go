package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"absent", "", ""},
		{"well formed", "Bearer abc123", "abc123"},
		{"wrong scheme", "Basic abc123", ""},
		{"no token after scheme", "Bearer ", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if c.header != "" {
				r.Header.Set("Authorization", c.header)
			}
			assert.Equal(t, c.want, bearerToken(r))
		})
	}
}

func TestNoopAuthenticate(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?user_id=u-1", nil)
	tuple, err := Noop{}.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "u-1", tuple.UserID)
	assert.True(t, tuple.SkipUserIDCheck)

	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	tuple2, err := Noop{}.Authenticate(r2)
	require.NoError(t, err)
	assert.Equal(t, DefaultUserID, tuple2.UserID)
}

func TestNoopWithTokenCapturesToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer tok-xyz")
	tuple, err := NoopWithToken{}.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "tok-xyz", tuple.Token)
}

func TestJWKCacheReusesWithinTTL(t *testing.T) {
	calls := 0
	c := newJWKCache()
	now := time.Now()
	c.now = func() time.Time { return now }
	fetch := func(string) (*keyfunc.JWKS, error) {
		calls++
		return &keyfunc.JWKS{}, nil
	}

	_, err := c.get("https://example.test/jwks.json", fetch)
	require.NoError(t, err)
	_, err = c.get("https://example.test/jwks.json", fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second call within TTL should not refetch")

	now = now.Add(2 * jwkCacheTTL)
	_, err = c.get("https://example.test/jwks.json", fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "call after TTL expiry should refetch")
}

func TestJWKTokenAuthenticateNoHeaderReturnsSentinel(t *testing.T) {
	m := NewJWKToken(JWKTokenConfig{JWKSURL: "https://example.test/jwks.json"})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	tuple, err := m.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, unauthenticatedSentinelUID, tuple.UserID)
}

func TestJWKTokenAuthenticateFetchFailure(t *testing.T) {
	m := NewJWKToken(JWKTokenConfig{JWKSURL: "https://example.test/jwks.json"})
	m.fetch = func(string) (*keyfunc.JWKS, error) { return nil, assertErr }

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer not-a-real-jwt")
	_, err := m.Authenticate(r)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

var assertErr = httpTestErr("jwks fetch failed")

type httpTestErr string

func (e httpTestErr) Error() string { return string(e) }
