// Package discord adapts a discordgo session to the moderation core: it
// translates gateway events into platform events and implements the
// platform actions and notifier over the REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cenkalti/backoff/v5"

	"github.com/volskaya/norman/cmd/internal/platform"
)

// Intents the bot needs: membership and presence for gating, bans for the
// ban sweep, messages for commands and key replies.
const Intents = discordgo.IntentGuilds |
	discordgo.IntentGuildMembers |
	discordgo.IntentGuildBans |
	discordgo.IntentGuildPresences |
	discordgo.IntentGuildMessages |
	discordgo.IntentDirectMessages |
	discordgo.IntentMessageContent

// EventSink consumes translated events. gate.Service.Dispatch satisfies it.
type EventSink func(ctx context.Context, ev platform.Event)

// Client owns one gateway session.
type Client struct {
	log     *slog.Logger
	session *discordgo.Session
	sink    EventSink

	maxRetryInterval time.Duration
	ready            atomic.Bool

	mu      sync.RWMutex
	baseCtx context.Context
	members map[memberKey]platform.Member
	roles   map[string]platform.Role

	removers []func()
}

type memberKey struct {
	guildID string
	userID  string
}

// Option configures a Client.
type Option func(*Client)

// WithMaxRetryInterval caps the wait between connect attempts.
func WithMaxRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxRetryInterval = d
		}
	}
}

// New creates a client for a bot token. The session is not opened.
func New(token string, log *slog.Logger, sink EventSink, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("discord: empty token")
	}
	if sink == nil {
		return nil, errors.New("discord: nil event sink")
	}
	if log == nil {
		log = slog.Default()
	}

	s, err := discordgo.New("Bot " + strings.TrimPrefix(token, "Bot "))
	if err != nil {
		return nil, fmt.Errorf("discord: new session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	s.State.TrackPresences = true
	s.State.TrackMembers = true
	s.ShouldReconnectOnError = true

	c := &Client{
		log:              log,
		session:          s,
		sink:             sink,
		maxRetryInterval: 2 * time.Minute,
		baseCtx:          context.Background(),
		members:          make(map[memberKey]platform.Member),
		roles:            make(map[string]platform.Role),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.registerHandlers()
	return c, nil
}

// Run opens the gateway, retrying with exponential backoff until it
// connects or ctx ends, then holds the session until ctx is done.
// discordgo resumes dropped connections on its own once open.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	if err := c.open(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return c.Close()
}

func (c *Client) open(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = c.maxRetryInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.session.Open()
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("gateway.connect.retry", "err", err, "next", next)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	c.log.Info("gateway.connected")
	return nil
}

// Ready reports whether the gateway session has completed its handshake.
func (c *Client) Ready() bool { return c.ready.Load() }

// Close tears down the session and detaches handlers.
func (c *Client) Close() error {
	c.ready.Store(false)
	c.mu.Lock()
	removers := c.removers
	c.removers = nil
	c.mu.Unlock()
	for _, rm := range removers {
		rm()
	}
	if err := c.session.Close(); err != nil {
		return fmt.Errorf("discord: close: %w", err)
	}
	return nil
}

func (c *Client) ctx() context.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseCtx
}
