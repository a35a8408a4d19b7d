package app

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/volskaya/norman/cmd/internal/gate"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "NORMAN_"

// DefaultConfigPath is read when --config is not given. A missing default
// file is not an error.
const DefaultConfigPath = "config.toml"

// ErrConfigurationMissing is returned by Validate when required settings are absent.
var ErrConfigurationMissing = errors.New("configuration missing")

// Backend names for the member store.
const (
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// RoleConfig names the three roles the bot works with, by id or by name.
type RoleConfig struct {
	Approved string `toml:"approved" env:"APPROVED"`
	Bot      string `toml:"bot" env:"BOT"`
	Admin    string `toml:"admin" env:"ADMIN"`
}

// HTTPConfig holds server timeouts for the control surface.
type HTTPConfig struct {
	ReadHeaderTimeout time.Duration `toml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `toml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout      time.Duration `toml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `toml:"idle_timeout" env:"IDLE_TIMEOUT"`
	MaxHeaderBytes    int           `toml:"max_header_bytes" env:"MAX_HEADER_BYTES"`
}

// Config is the complete runtime configuration. Sources are applied in
// order: defaults, TOML file, NORMAN_* environment, command line flags.
type Config struct {
	Token   string     `toml:"token" env:"TOKEN"`
	OwnerID string     `toml:"owner" env:"OWNER"`
	GuildID string     `toml:"server" env:"SERVER"`
	Name    string     `toml:"name" env:"NAME"`
	Role    RoleConfig `toml:"role" envPrefix:"ROLE_"`

	// KickTimeout is in seconds; 0 waits for a reply indefinitely.
	KickTimeout      int    `toml:"timeout" env:"TIMEOUT"`
	KickEnabled      bool   `toml:"kick" env:"KICK"`
	DisableAdminRole bool   `toml:"no_admin_role" env:"NO_ADMIN_ROLE"`
	DefaultChannelID string `toml:"channel" env:"CHANNEL"`
	CommandPrefix    string `toml:"prefix" env:"PREFIX"`

	ServerIP   string `toml:"server_ip" env:"SERVER_IP"`
	ServerPort int    `toml:"server_port" env:"SERVER_PORT"`
	// APIToken is the control surface secret, plain or as an Argon2id hash.
	APIToken       string     `toml:"api_token" env:"API_TOKEN"`
	TrustProxy     bool       `toml:"trust_proxy" env:"TRUST_PROXY"`
	AllowedOrigins []string   `toml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	HTTP           HTTPConfig `toml:"http" envPrefix:"HTTP_"`

	Backend     string `toml:"backend" env:"BACKEND"`
	DataPath    string `toml:"data_path" env:"DATA_PATH"`
	DatabaseURL string `toml:"database_url" env:"DATABASE_URL"`
	DBSchema    string `toml:"db_schema" env:"DB_SCHEMA"`
	DBMaxConns  int32  `toml:"db_max_conns" env:"DB_MAX_CONNS"`
	DBMinConns  int32  `toml:"db_min_conns" env:"DB_MIN_CONNS"`

	LogLevel  string `toml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `toml:"log_format" env:"LOG_FORMAT"`

	// InfoOnly logs what the bot can see and exits.
	InfoOnly bool `toml:"-" env:"INFO"`
}

// DefaultConfig returns the settings used before any source is applied.
func DefaultConfig() Config {
	return Config{
		KickTimeout:   60,
		KickEnabled:   true,
		CommandPrefix: "!",
		ServerIP:      "127.0.0.1",
		ServerPort:    8080,
		HTTP: HTTPConfig{
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		Backend:    BackendBolt,
		DataPath:   "norman.db",
		DBSchema:   "norman",
		DBMaxConns: 10,
		LogLevel:   "info",
		LogFormat:  "json",
	}
}

// HTTPAddr is the listen address of the control surface.
func (c Config) HTTPAddr() string {
	return net.JoinHostPort(c.ServerIP, strconv.Itoa(c.ServerPort))
}

// GateConfig derives the moderation settings.
func (c Config) GateConfig() gate.Config {
	return gate.Config{
		GuildID:          c.GuildID,
		OwnerID:          c.OwnerID,
		ApprovedRole:     gate.ParseRoleRef(c.Role.Approved),
		BotRole:          gate.ParseRoleRef(c.Role.Bot),
		AdminRole:        gate.ParseRoleRef(c.Role.Admin),
		KickTimeout:      time.Duration(c.KickTimeout) * time.Second,
		KickEnabled:      c.KickEnabled,
		DisableAdminRole: c.DisableAdminRole,
		DefaultChannelID: c.DefaultChannelID,
		CommandPrefix:    c.CommandPrefix,
		InfoOnly:         c.InfoOnly,
	}
}

// LoadFile merges a TOML file into cfg. Keys absent from the file keep
// their current values.
func LoadFile(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// LoadEnv merges NORMAN_* variables from environ into cfg.
func LoadEnv(cfg *Config, environ []string) error {
	opts := env.Options{Prefix: EnvPrefix, Environment: env.ToMap(environ)}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load builds the configuration from every source. It also returns the
// parsed command line so callers can act on one-shot flags.
func Load(args, environ []string) (Config, Flags, error) {
	fl, err := ParseFlags(args)
	if err != nil {
		return Config{}, fl, err
	}

	cfg := DefaultConfig()

	path := fl.ConfigPath
	if path == "" {
		path = DefaultConfigPath
		if _, statErr := os.Stat(path); statErr != nil {
			path = ""
		}
	}
	if path != "" {
		if err := LoadFile(&cfg, path); err != nil {
			return Config{}, fl, err
		}
	}

	if err := LoadEnv(&cfg, environ); err != nil {
		return Config{}, fl, err
	}
	fl.apply(&cfg)

	cfg.normalize()
	return cfg, fl, nil
}

func (c *Config) normalize() {
	c.Token = strings.TrimSpace(c.Token)
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.ServerIP = strings.TrimSpace(c.ServerIP)
	if c.KickTimeout < 0 {
		c.KickTimeout = 0
	}
	if c.CommandPrefix == "" {
		c.CommandPrefix = "!"
	}
}

// Validate reports missing or inconsistent settings.
func (c Config) Validate() error {
	var missing []string
	if c.Token == "" {
		missing = append(missing, "token")
	}
	if c.OwnerID == "" {
		missing = append(missing, "owner")
	}
	if c.GuildID == "" {
		missing = append(missing, "server")
	}
	if strings.TrimSpace(c.Role.Approved) == "" {
		missing = append(missing, "role.approved")
	}
	if strings.TrimSpace(c.Role.Bot) == "" {
		missing = append(missing, "role.bot")
	}
	if !c.DisableAdminRole && strings.TrimSpace(c.Role.Admin) == "" {
		missing = append(missing, "role.admin")
	}
	switch c.Backend {
	case BackendBolt, BackendSQLite:
		if strings.TrimSpace(c.DataPath) == "" {
			missing = append(missing, "data_path")
		}
	case BackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			missing = append(missing, "database_url")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q (want bolt, sqlite, postgres or memory)", c.Backend)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(missing, ", "))
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port out of range: %d", c.ServerPort)
	}
	return nil
}
