package api

import (
	"crypto/rand"
	"net/http"
	"sync"

	"github.com/volskaya/norman/cmd/security/secret"
	"github.com/volskaya/norman/cmd/security/token"
)

// maxVerified bounds the cache of presented secrets that matched a hashed token.
const maxVerified = 64

// authenticator checks the shared secret on each request. A hashed token is
// verified once per distinct presented value; later requests hit a cache
// keyed by an HMAC of the presented value under a per-process key.
type authenticator struct {
	expected string
	hashed   bool
	secrets  secret.Config

	cacheKey []byte

	mu       sync.Mutex
	verified map[string]struct{}
}

func newAuthenticator(expected string, secrets secret.Config) *authenticator {
	a := &authenticator{
		expected: expected,
		hashed:   secret.IsHash(expected),
		secrets:  secrets,
		verified: make(map[string]struct{}),
	}
	if a.hashed {
		a.cacheKey = make([]byte, 32)
		_, _ = rand.Read(a.cacheKey)
	}
	return a
}

func (a *authenticator) enabled() bool { return a != nil && a.expected != "" }

// allow reports whether r carries the shared secret.
func (a *authenticator) allow(r *http.Request) bool {
	if !a.enabled() {
		return true
	}
	presented, err := token.FromRequest(r)
	if err != nil {
		return false
	}
	if !a.hashed {
		return token.Equal(presented, a.expected)
	}

	digest := token.HashHMACSHA256Hex(presented, a.cacheKey)
	a.mu.Lock()
	_, ok := a.verified[digest]
	a.mu.Unlock()
	if ok {
		return true
	}

	ok, err = a.secrets.Verify(a.expected, presented)
	if err != nil || !ok {
		return false
	}

	a.mu.Lock()
	if len(a.verified) >= maxVerified {
		clear(a.verified)
	}
	a.verified[digest] = struct{}{}
	a.mu.Unlock()
	return true
}
