package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Precedence(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
token = "file-token"
owner = "1"
server = "100"
server_port = 9000
timeout = 30

[role]
approved = "Approved"
bot = "901"
admin = "admins"

[http]
read_timeout = "20s"
`)

	environ := []string{
		"NORMAN_TOKEN=env-token",
		"NORMAN_ROLE_ADMIN=Moderators",
		"NORMAN_BACKEND=sqlite",
		"UNRELATED=1",
	}
	cfg, _, err := Load([]string{"--config", path, "--port", "9100", "--no-kick"}, environ)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Token != "env-token" {
		t.Fatalf("token=%q (env must beat file)", cfg.Token)
	}
	if cfg.OwnerID != "1" || cfg.GuildID != "100" {
		t.Fatalf("owner/server from file: %+v", cfg)
	}
	if cfg.ServerPort != 9100 {
		t.Fatalf("port=%d (flag must beat file)", cfg.ServerPort)
	}
	if cfg.KickTimeout != 30 || cfg.KickEnabled {
		t.Fatalf("timeout=%d kick=%v", cfg.KickTimeout, cfg.KickEnabled)
	}
	if cfg.Role.Approved != "Approved" || cfg.Role.Bot != "901" || cfg.Role.Admin != "Moderators" {
		t.Fatalf("roles=%+v", cfg.Role)
	}
	if cfg.Backend != BackendSQLite {
		t.Fatalf("backend=%q", cfg.Backend)
	}
	if cfg.HTTP.ReadTimeout != 20*time.Second || cfg.HTTP.WriteTimeout != 15*time.Second {
		t.Fatalf("http=%+v", cfg.HTTP)
	}
	if cfg.ServerIP != "127.0.0.1" || cfg.CommandPrefix != "!" {
		t.Fatalf("defaults lost: ip=%q prefix=%q", cfg.ServerIP, cfg.CommandPrefix)
	}
}

func TestLoad_UnsetFlagsDoNotOverride(t *testing.T) {
	t.Parallel()

	cfg, _, err := Load(nil, []string{"NORMAN_TIMEOUT=0", "NORMAN_KICK=false"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.KickTimeout != 0 || cfg.KickEnabled {
		t.Fatalf("timeout=%d kick=%v", cfg.KickTimeout, cfg.KickEnabled)
	}
}

func TestLoad_BadFile(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "token = \n")
	if _, _, err := Load([]string{"--config", path}, nil); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, _, err := Load([]string{"--config", filepath.Join(t.TempDir(), "missing.toml")}, nil); err == nil {
		t.Fatalf("expected error for an explicit missing file")
	}
}

func TestLoad_HelpAndHashToken(t *testing.T) {
	t.Parallel()

	_, fl, err := Load([]string{"--help"}, nil)
	if err != nil || !fl.Help {
		t.Fatalf("help: fl=%+v err=%v", fl, err)
	}
	if !strings.Contains(fl.Usage(), "--hash-token") {
		t.Fatalf("usage missing flags:\n%s", fl.Usage())
	}

	_, fl, err = Load([]string{"--hash-token", "abc"}, nil)
	if err != nil || fl.HashToken != "abc" {
		t.Fatalf("hash token: fl=%+v err=%v", fl, err)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := DefaultConfig()
	valid.Token = "t"
	valid.OwnerID = "1"
	valid.GuildID = "100"
	valid.Role = RoleConfig{Approved: "900", Bot: "901", Admin: "902"}

	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		missing string
	}{
		{name: "token", mutate: func(c *Config) { c.Token = "" }, missing: "token"},
		{name: "owner", mutate: func(c *Config) { c.OwnerID = "" }, missing: "owner"},
		{name: "server", mutate: func(c *Config) { c.GuildID = "" }, missing: "server"},
		{name: "approved role", mutate: func(c *Config) { c.Role.Approved = " " }, missing: "role.approved"},
		{name: "admin role", mutate: func(c *Config) { c.Role.Admin = "" }, missing: "role.admin"},
		{name: "postgres url", mutate: func(c *Config) { c.Backend = BackendPostgres }, missing: "database_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrConfigurationMissing) {
				t.Fatalf("err=%v want ErrConfigurationMissing", err)
			}
			if !strings.Contains(err.Error(), tc.missing) {
				t.Fatalf("err=%v should name %q", err, tc.missing)
			}
		})
	}

	noAdmin := valid
	noAdmin.Role.Admin = ""
	noAdmin.DisableAdminRole = true
	if err := noAdmin.Validate(); err != nil {
		t.Fatalf("admin role is optional with DisableAdminRole: %v", err)
	}

	badBackend := valid
	badBackend.Backend = "redis"
	if err := badBackend.Validate(); err == nil || errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("unknown backend err=%v", err)
	}
}

func TestConfig_GateConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.GuildID = "100"
	cfg.Role = RoleConfig{Approved: "900", Bot: "Bots", Admin: ""}
	cfg.KickTimeout = 45

	gc := cfg.GateConfig()
	if gc.ApprovedRole.ID != "900" || gc.BotRole.Name != "Bots" || !gc.AdminRole.IsZero() {
		t.Fatalf("roles=%+v %+v %+v", gc.ApprovedRole, gc.BotRole, gc.AdminRole)
	}
	if gc.KickTimeout != 45*time.Second || !gc.KickEnabled {
		t.Fatalf("gate config=%+v", gc)
	}
	if got := cfg.HTTPAddr(); got != "127.0.0.1:8080" {
		t.Fatalf("addr=%q", got)
	}
}
