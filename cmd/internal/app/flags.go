package app

import (
	"github.com/spf13/pflag"
)

// Flags is the parsed command line. Only flags that were set override the
// file and environment.
type Flags struct {
	ConfigPath string
	HashToken  string
	Help       bool

	set *pflag.FlagSet

	backend     string
	timeout     int
	noKick      bool
	noAdminRole bool
	ip          string
	port        int
	info        bool
	logLevel    string
	logFormat   string
}

// ParseFlags parses args (without the program name).
func ParseFlags(args []string) (Flags, error) {
	var f Flags

	fs := pflag.NewFlagSet("norman", pflag.ContinueOnError)
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "path to the TOML config file (default ./"+DefaultConfigPath+")")
	fs.StringVar(&f.backend, "backend", "", "member store: bolt, sqlite, postgres or memory")
	fs.IntVarP(&f.timeout, "timeout", "t", 0, "seconds a member has to answer the key request (0 waits forever)")
	fs.BoolVar(&f.noKick, "no-kick", false, "revoke the approved role instead of kicking")
	fs.BoolVar(&f.noAdminRole, "no-admin-role", false, "only the owners may run admin commands")
	fs.StringVar(&f.ip, "ip", "", "control surface bind address")
	fs.IntVarP(&f.port, "port", "p", 0, "control surface port")
	fs.BoolVar(&f.info, "info", false, "log guilds, roles and member counts, then exit")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", "", "json or pretty")
	fs.StringVar(&f.HashToken, "hash-token", "", "print the Argon2id hash of a control surface token and exit")
	fs.BoolVarP(&f.Help, "help", "h", false, "show help")

	f.set = fs
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			f.Help = true
			return f, nil
		}
		return f, err
	}
	return f, nil
}

// Usage returns the flag help text.
func (f Flags) Usage() string {
	if f.set == nil {
		return ""
	}
	return "Usage: norman [flags]\n\n" + f.set.FlagUsages()
}

func (f Flags) changed(name string) bool {
	return f.set != nil && f.set.Changed(name)
}

func (f Flags) apply(cfg *Config) {
	if f.changed("backend") {
		cfg.Backend = f.backend
	}
	if f.changed("timeout") {
		cfg.KickTimeout = f.timeout
	}
	if f.changed("no-kick") {
		cfg.KickEnabled = !f.noKick
	}
	if f.changed("no-admin-role") {
		cfg.DisableAdminRole = f.noAdminRole
	}
	if f.changed("ip") {
		cfg.ServerIP = f.ip
	}
	if f.changed("port") {
		cfg.ServerPort = f.port
	}
	if f.changed("info") {
		cfg.InfoOnly = f.info
	}
	if f.changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if f.changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
}
