package auth

import (
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"golang.org/x/sync/singleflight"
)

// jwkCacheTTL is how long a fetched JWK set is reused before refetching.
const jwkCacheTTL = time.Hour

// jwkCache is a TTL map of JWK sets keyed by the set's source URL.
// Concurrent callers for the same URL collapse onto a single in-flight
// fetch via singleflight, so a refresh never happens more than once per
// URL per TTL window even under a burst of concurrent requests.
type jwkCache struct {
	mu      sync.RWMutex
	entries map[string]*jwkCacheEntry
	group   singleflight.Group
	now     func() time.Time
}

type jwkCacheEntry struct {
	jwks      *keyfunc.JWKS
	fetchedAt time.Time
}

func newJWKCache() *jwkCache {
	return &jwkCache{
		entries: make(map[string]*jwkCacheEntry),
		now:     time.Now,
	}
}

// get returns a cached JWKS for url, fetching (and caching) it via fetch if
// absent or stale.
func (c *jwkCache) get(url string, fetch func(string) (*keyfunc.JWKS, error)) (*keyfunc.JWKS, error) {
	if jwks, ok := c.lookup(url); ok {
		return jwks, nil
	}

	v, err, _ := c.group.Do(url, func() (interface{}, error) {
		if jwks, ok := c.lookup(url); ok {
			return jwks, nil
		}
		jwks, err := fetch(url)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[url] = &jwkCacheEntry{jwks: jwks, fetchedAt: c.now()}
		c.mu.Unlock()
		return jwks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*keyfunc.JWKS), nil
}

func (c *jwkCache) lookup(url string) (*keyfunc.JWKS, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[url]
	if !ok || c.now().Sub(e.fetchedAt) >= jwkCacheTTL {
		return nil, false
	}
	return e.jwks, true
}
