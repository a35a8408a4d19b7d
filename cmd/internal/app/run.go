package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/volskaya/norman/cmd/security/secret"
)

// Run is the CLI entrypoint used by cmd/norman.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(args []string, stdout io.Writer) error {
	cfg, fl, err := Load(args, os.Environ())
	if err != nil {
		return err
	}
	if fl.Help {
		_, _ = fmt.Fprint(stdout, fl.Usage())
		return nil
	}
	if fl.HashToken != "" {
		return printTokenHash(stdout, fl.HashToken)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return err
	}

	log := NewLogger(cfg.LogLevel, cfg.LogFormat, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func printTokenHash(w io.Writer, plain string) error {
	hash, err := secret.DefaultConfig().Hash(plain)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}
