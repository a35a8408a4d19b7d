// Package app wires the norman runtime: config, logging, the member store,
// the Discord gateway, the moderation service and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/volskaya/norman/cmd/internal/api"
	"github.com/volskaya/norman/cmd/internal/gate"
	"github.com/volskaya/norman/cmd/internal/member"
	"github.com/volskaya/norman/cmd/internal/metrics"
	"github.com/volskaya/norman/cmd/internal/platform"
	"github.com/volskaya/norman/cmd/internal/platform/discord"
	"github.com/volskaya/norman/cmd/internal/realtime"
)

// Gateway is the chat platform connection: an event source plus the
// actions and notifications the moderation service needs.
type Gateway interface {
	gate.Platform
	gate.Notifier
	Run(ctx context.Context) error
	Ready() bool
}

// GatewayFactory builds a Gateway that delivers events to sink.
type GatewayFactory func(cfg Config, log Logger, sink func(context.Context, platform.Event)) (Gateway, error)

// DiscordGateway is the production GatewayFactory.
func DiscordGateway(cfg Config, log Logger, sink func(context.Context, platform.Event)) (Gateway, error) {
	return discord.New(cfg.Token, log.With("component", "discord"), sink)
}

// App is the norman runtime.
type App struct {
	cfg Config
	log Logger

	backend member.Backend
	pool    *pgxpool.Pool
	store   *member.Store

	metrics *metrics.Metrics
	hub     *realtime.Hub
	feed    *realtime.WSGateway

	gate    *gate.Service
	gateway Gateway
	api     *api.Handler
}

// New constructs a fully wired App. newGateway may be nil for the Discord gateway.
func New(ctx context.Context, cfg Config, log Logger, newGateway GatewayFactory) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
	}
	if cfg.Name != "" {
		log = log.With("bot", cfg.Name)
	}
	if newGateway == nil {
		newGateway = DiscordGateway
	}

	a := &App{cfg: cfg, log: log, metrics: metrics.New()}

	backend, pool, err := openBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.backend, a.pool = backend, pool

	a.store, err = member.NewStore(backend, member.WithObserver(a.metrics))
	if err != nil {
		a.closeStore()
		return nil, err
	}

	a.hub = realtime.NewHub(log.With("component", "feed"), a.metrics)

	var svc *gate.Service
	gw, err := newGateway(cfg, log, func(ctx context.Context, ev platform.Event) {
		svc.Dispatch(ctx, ev)
	})
	if err != nil {
		a.closeStore()
		return nil, err
	}
	a.gateway = gw

	svc = gate.New(cfg.GateConfig(), a.store, gw, gw, log.With("component", "gate"),
		gate.WithRecorder(a.metrics),
		gate.WithActivitySink(a.hub),
	)
	a.gate = svc

	a.api, err = api.NewHandler(log.With("component", "api"), svc, api.Config{
		Token:      cfg.APIToken,
		TrustProxy: cfg.TrustProxy,
	}, api.WithObserver(a.metrics))
	if err != nil {
		a.closeStore()
		return nil, err
	}

	a.feed = realtime.NewWSGateway(log.With("component", "feed"), a.hub, realtime.GatewayConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Authorize:      a.api.Authorize,
	})

	return a, nil
}

// Handler returns the HTTP handler with middleware applied.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a)
	return WithRequestLogging(WithSecurityHeaders(mux), a.log)
}

// Run connects the gateway and serves HTTP until ctx is cancelled or either
// side fails. In info mode it returns once the guild report is logged.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		return a.gateway.Run(runCtx)
	})

	if a.cfg.InfoOnly {
		g.Go(func() error {
			select {
			case <-a.gate.InfoDone():
				a.log.Info("info.done")
				stop()
			case <-runCtx.Done():
			}
			return nil
		})
		return g.Wait()
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.HTTP.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.HTTP.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.HTTP.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.HTTP.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.HTTP.MaxHeaderBytes, 1<<20),
	}

	g.Go(func() error {
		a.log.Info("server.start", "addr", srv.Addr, "backend", a.cfg.Backend, "auth", a.api.AuthEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		a.log.Info("server.stopped")
		return nil
	})

	return g.Wait()
}

func (a *App) close() {
	if a.gate != nil {
		a.gate.Close()
	}
	a.closeStore()
}

func (a *App) closeStore() {
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.log.Error("store.close.fail", "err", err)
		}
		a.backend = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
