package app

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/volskaya/norman/cmd/security/secret"
	"github.com/volskaya/norman/cmd/security/token"
)

// ErrInsecureHTTP is returned when the control surface would listen beyond
// loopback without a token.
var ErrInsecureHTTP = errors.New("security policy: api_token is required when server_ip is not loopback")

// ValidateSecurityConfig enforces the control surface policy at startup:
// a non-loopback bind needs a token, and a configured token must be either a
// well-formed Argon2id hash or a plain secret of at least token.MinBytes.
func ValidateSecurityConfig(cfg Config) error {
	tok := strings.TrimSpace(cfg.APIToken)
	if tok == "" {
		if isLoopbackHost(cfg.ServerIP) {
			return nil
		}
		return ErrInsecureHTTP
	}

	if secret.IsHash(tok) {
		if _, err := secret.DefaultConfig().Verify(tok, ""); errors.Is(err, secret.ErrInvalidHash) {
			return fmt.Errorf("security policy: api_token: %w", err)
		}
		return nil
	}
	if err := token.Check(tok); err != nil {
		return fmt.Errorf("security policy: api_token: %w (min %d bytes)", err, token.MinBytes)
	}
	return nil
}

func isLoopbackHost(host string) bool {
	host = strings.Trim(strings.TrimSpace(host), "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
