package secret

import (
	"fmt"
	"runtime"
)

// Params controls Argon2id cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Params struct {
	MemoryKiB   uint32 `toml:"memory_kib" env:"MEMORY_KIB"`
	Iterations  uint32 `toml:"iterations" env:"ITERATIONS"`
	Parallelism uint8  `toml:"parallelism" env:"PARALLELISM"`
	SaltLength  uint32 `toml:"salt_length" env:"SALT_LEN"`
	KeyLength   uint32 `toml:"key_length" env:"KEY_LEN"`
}

// Config is the single configuration surface for this package.
type Config struct {
	Params    Params
	MinLength int
	MaxLength int
}

// DefaultConfig is sized for per-request verification rather than
// interactive logins.
func DefaultConfig() Config {
	threads := min(max(runtime.NumCPU(), 1), 4)
	return Config{
		Params: Params{
			MemoryKiB:   19 * 1024,
			Iterations:  2,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		MinLength: 16,
		MaxLength: 512,
	}
}

// Check validates cost and length bounds.
func (c Config) Check() error {
	p := c.Params
	switch {
	case p.MemoryKiB < 8*1024 || p.MemoryKiB > 1024*1024:
		return fmt.Errorf("secret: memory_kib out of range [8192..1048576]: %d", p.MemoryKiB)
	case p.Iterations < 1 || p.Iterations > 20:
		return fmt.Errorf("secret: iterations out of range [1..20]: %d", p.Iterations)
	case p.Parallelism < 1 || p.Parallelism > 64:
		return fmt.Errorf("secret: parallelism out of range [1..64]: %d", p.Parallelism)
	case p.SaltLength < 8 || p.SaltLength > 64:
		return fmt.Errorf("secret: salt_length out of range [8..64]: %d", p.SaltLength)
	case p.KeyLength < 16 || p.KeyLength > 64:
		return fmt.Errorf("secret: key_length out of range [16..64]: %d", p.KeyLength)
	case c.MinLength > c.MaxLength:
		return fmt.Errorf("secret: min_len(%d) > max_len(%d)", c.MinLength, c.MaxLength)
	}
	return nil
}
