package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	feedv1 "github.com/volskaya/norman/cmd/shared/contracts/feed/v1"
)

// GatewayConfig tunes the feed websocket endpoint. Zero values take defaults.
type GatewayConfig struct {
	// AllowedOrigins lists full origins or hosts. "*" allows any origin.
	AllowedOrigins []string
	// OriginRequired rejects upgrades without an Origin header.
	OriginRequired bool

	WriteTimeout     time.Duration
	HelloTimeout     time.Duration
	SendQueueSize    int
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration
	RateEvents       int
	RateWindow       time.Duration

	// Authorize, when set, must accept the upgrade request.
	Authorize func(r *http.Request) bool
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = defaultHelloTimeout
	}
	switch {
	case c.SendQueueSize == 0:
		c.SendQueueSize = defaultSendQueue
	case c.SendQueueSize < minSendQueue:
		c.SendQueueSize = minSendQueue
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = heartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = heartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = rateLimitEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = rateLimitWindow
	}
	return c
}

// WSGateway serves the moderation feed over a websocket.
//
// A session starts with a client hello and is then push-only: the gateway
// forwards every activity published on the Hub until either side closes.
type WSGateway struct {
	log *slog.Logger
	hub *Hub
	cfg GatewayConfig

	// Derived for websocket.Accept, which only authorizes same-host origins
	// unless OriginPatterns lists the others.
	originPatterns []string
}

// NewWSGateway constructs a gateway publishing from hub.
func NewWSGateway(log *slog.Logger, hub *Hub, cfg GatewayConfig) *WSGateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log, nil)
	}
	cfg = cfg.withDefaults()
	return &WSGateway{
		log:            log,
		hub:            hub,
		cfg:            cfg,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}
}

func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("feed.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if g.cfg.Authorize != nil && !g.cfg.Authorize(r) {
		g.log.Info("feed.reject.auth", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{feedv1.Subprotocol},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("feed.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != feedv1.Subprotocol {
		g.log.Info("feed.reject.subprotocol", "got", sp, "want", feedv1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	g.serve(r.Context(), conn, r.RemoteAddr)
}

func (g *WSGateway) serve(parent context.Context, conn *websocket.Conn, remote string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	helloCtx, helloCancel := context.WithTimeout(ctx, g.cfg.HelloTimeout)
	env, err := readEnvelope(helloCtx, conn)
	helloCancel()
	if err != nil {
		g.log.Info("feed.hello.fail", "remote", remote, "err", err)
		_ = conn.Close(websocket.StatusPolicyViolation, "hello required")
		return
	}
	if err := env.Validate(); err != nil || env.Type != feedv1.TypeHello {
		_ = writeError(ctx, conn, g.cfg.WriteTimeout, "hello_required", "first frame must be hello")
		_ = conn.Close(websocket.StatusPolicyViolation, "hello required")
		return
	}

	now := time.Now().UTC()
	sessionID, err := NewULID(now)
	if err != nil {
		g.log.Error("feed.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	client := NewClient(sessionID, remote, g.cfg.SendQueueSize)

	ack, _ := json.Marshal(feedv1.HelloAckPayload{SessionID: sessionID})
	if err := writeEnvelope(ctx, conn, newEnvelope(feedv1.TypeHelloAck, ack, now), g.cfg.WriteTimeout); err != nil {
		g.log.Info("feed.write.fail", "session_id", sessionID, "err", err)
		return
	}

	g.hub.Subscribe(client)

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Unsubscribe(sessionID)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("feed.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()
				if err == nil {
					failures = 0
					continue
				}
				failures++
				g.log.Info("feed.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
				if failures >= maxPingFailures {
					shutdown(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
			}
		}
	}()

	// Inbound frames are only read to notice closes and to enforce the rate limit.
	rl := newFrameLimiter(g.cfg.RateEvents, g.cfg.RateWindow)
	for {
		env, err := readEnvelope(ctx, conn)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose, readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "closed")
			case readErrBadJSON:
				if rl.AllowN(time.Now(), 1) {
					g.trySendError(client, "bad_json", "invalid JSON")
					continue
				}
				shutdown(websocket.StatusPolicyViolation, "rate limited")
			default:
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break
		}
		if !rl.AllowN(time.Now(), 1) {
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break
		}
		if err := env.Validate(); err != nil {
			g.trySendError(client, "bad_envelope", err.Error())
			continue
		}
		g.trySendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
	}

	<-writerDone
	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
}

func (g *WSGateway) trySendError(client *Client, code, msg string) {
	p, _ := json.Marshal(feedv1.ErrorPayload{Code: code, Message: msg})
	select {
	case client.Send <- newEnvelope(feedv1.TypeError, p, time.Now().UTC()):
	default:
	}
}

// ---- envelope IO ----

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) feedv1.Envelope {
	return feedv1.Envelope{
		V:       feedv1.Version,
		Type:    typ,
		ID:      mustULID(ts),
		TS:      ts,
		Payload: payload,
	}
}

type badJSONError struct{ err error }

func (e badJSONError) Error() string { return "decode envelope: " + e.err.Error() }
func (e badJSONError) Unwrap() error { return e.err }

func readEnvelope(ctx context.Context, conn *websocket.Conn) (feedv1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return feedv1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return feedv1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env feedv1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return feedv1.Envelope{}, badJSONError{err: err}
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env feedv1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func writeError(ctx context.Context, conn *websocket.Conn, timeout time.Duration, code, msg string) error {
	p, _ := json.Marshal(feedv1.ErrorPayload{Code: code, Message: msg})
	return writeEnvelope(ctx, conn, newEnvelope(feedv1.TypeError, p, time.Now().UTC()), timeout)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	var bad badJSONError
	switch {
	case websocket.CloseStatus(err) != -1:
		return readErrClose
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return readErrCtxDone
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return readErrConnClosed
	case errors.As(err, &bad):
		return readErrBadJSON
	default:
		return readErrUnknown
	}
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}
	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			continue
		case a == "*", origin == a:
			return nil
		case originHost != "" && originHost == originHostOnly(a):
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatterns(allowed []string) []string {
	var out []string
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" || slices.Contains(out, h) {
			continue
		}
		// Accept matches patterns against host:port.
		out = append(out, h, h+":*")
	}
	slices.Sort(out)
	return out
}
