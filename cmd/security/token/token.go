package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// HeaderName is the alternative to an Authorization bearer token.
const HeaderName = "X-Norman-Token"

// MinBytes is the shortest accepted secret.
const MinBytes = 16

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Equal compares two secrets in constant time. Both sides are hashed first
// so that length differences do not leak.
func Equal(presented, expected string) bool {
	if presented == "" || expected == "" {
		return false
	}
	a := sha256.Sum256([]byte(presented))
	b := sha256.Sum256([]byte(expected))
	return hmac.Equal(a[:], b[:])
}

// FromRequest extracts the presented secret from "Authorization: Bearer" or
// the X-Norman-Token header.
func FromRequest(r *http.Request) (string, error) {
	if v := strings.TrimSpace(r.Header.Get("Authorization")); v != "" {
		scheme, rest, ok := strings.Cut(v, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(rest) != "" {
			return strings.TrimSpace(rest), nil
		}
	}
	if v := strings.TrimSpace(r.Header.Get(HeaderName)); v != "" {
		return v, nil
	}
	return "", ErrTokenMissing
}

// Check enforces the minimum length on a configured secret.
func Check(secret string) error {
	switch {
	case strings.TrimSpace(secret) == "":
		return ErrTokenMissing
	case len(secret) < MinBytes:
		return ErrTokenTooShort
	}
	return nil
}

// Generate returns a random hex secret of 2*nBytes characters.
func Generate(nBytes int) (string, error) {
	if nBytes < MinBytes {
		nBytes = 32
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
