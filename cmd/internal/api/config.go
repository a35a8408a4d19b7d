package api

import (
	"time"

	"github.com/volskaya/norman/cmd/security/secret"
)

// Config controls the control surface's access policy.
type Config struct {
	// Token is the shared secret callers present. It is either the secret
	// itself or its Argon2id hash. Empty disables authentication.
	Token string
	// Secret bounds the cost of a hashed Token.
	Secret secret.Config

	TrustProxy bool

	// RatePerSecond and RateBurst bound requests per client address.
	RatePerSecond float64
	RateBurst     int
	// ClientIdle is how long an idle client's limiter is kept.
	ClientIdle time.Duration
}

// DefaultConfig returns the defaults used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Secret:        secret.DefaultConfig(),
		RatePerSecond: 5,
		RateBurst:     20,
		ClientIdle:    10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Secret == (secret.Config{}) {
		c.Secret = def.Secret
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = def.RatePerSecond
	}
	if c.RateBurst <= 0 {
		c.RateBurst = def.RateBurst
	}
	if c.ClientIdle <= 0 {
		c.ClientIdle = def.ClientIdle
	}
	return c
}
