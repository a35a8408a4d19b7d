// Package main tails the moderation feed of a running bot.
//
// It performs the hello handshake, then prints every activity frame until
// the connection closes, -n frames were seen or -wait elapses.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/pflag"

	feedv1 "github.com/volskaya/norman/cmd/shared/contracts/feed/v1"
)

const maxReadBytes = 1 << 20 // 1MiB

func main() {
	fs := pflag.NewFlagSet("feed-tail", pflag.ContinueOnError)
	var (
		wsURL   = fs.String("url", "ws://127.0.0.1:8080/events", "feed WebSocket URL")
		origin  = fs.String("origin", "", "Origin header to send")
		apiTok  = fs.String("token", os.Getenv("NORMAN_API_TOKEN"), "control token (defaults to $NORMAN_API_TOKEN)")
		timeout = fs.Duration("timeout", 7*time.Second, "handshake timeout")
		wait    = fs.Duration("wait", 0, "stop after this long (0 waits forever)")
		count   = fs.IntP("count", "n", 0, "stop after n activity frames (0 is unlimited)")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fatalf("%v", err)
	}
	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid --url: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *wait)
		defer cancel()
	}

	conn, sessionID, err := connect(ctx, *wsURL, *origin, *apiTok, *timeout)
	if err != nil {
		fatalf("%v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()
	fmt.Fprintf(os.Stderr, "connected: session=%s\n", sessionID)

	seen := 0
	for *count == 0 || seen < *count {
		env, err := read(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fatalf("read: %v", err)
		}
		switch env.Type {
		case feedv1.TypeActivity:
			var a feedv1.Activity
			if err := json.Unmarshal(env.Payload, &a); err != nil {
				fatalf("activity payload: %v", err)
			}
			printActivity(a)
			seen++
		case feedv1.TypeError:
			var ep feedv1.ErrorPayload
			_ = json.Unmarshal(env.Payload, &ep)
			fatalf("server error: code=%q msg=%q", ep.Code, ep.Message)
		}
	}
}

func connect(parent context.Context, wsURL, origin, apiToken string, timeout time.Duration) (*websocket.Conn, string, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	if strings.TrimSpace(apiToken) != "" {
		h.Set("Authorization", "Bearer "+strings.TrimSpace(apiToken))
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{feedv1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, "", fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(maxReadBytes)

	hello := feedv1.Envelope{
		V:       feedv1.Version,
		Type:    feedv1.TypeHello,
		ID:      "tail-hello",
		TS:      time.Now().UTC(),
		Payload: json.RawMessage(`{}`),
	}
	b, err := json.Marshal(hello)
	if err != nil {
		return nil, "", err
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		_ = conn.CloseNow()
		return nil, "", fmt.Errorf("write hello: %w", err)
	}

	ack, err := read(ctx, conn)
	if err != nil {
		_ = conn.CloseNow()
		return nil, "", fmt.Errorf("read hello_ack: %w", err)
	}
	if ack.Type != feedv1.TypeHelloAck {
		_ = conn.CloseNow()
		return nil, "", fmt.Errorf("unexpected envelope %q, want %q", ack.Type, feedv1.TypeHelloAck)
	}
	var p feedv1.HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil || strings.TrimSpace(p.SessionID) == "" {
		_ = conn.CloseNow()
		return nil, "", errors.New("hello_ack missing session_id")
	}
	return conn, p.SessionID, nil
}

func read(ctx context.Context, conn *websocket.Conn) (feedv1.Envelope, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return feedv1.Envelope{}, err
	}
	var env feedv1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return feedv1.Envelope{}, fmt.Errorf("bad json: %w", err)
	}
	if err := env.Validate(); err != nil {
		return feedv1.Envelope{}, fmt.Errorf("bad envelope: %w", err)
	}
	return env, nil
}

func printActivity(a feedv1.Activity) {
	var b strings.Builder
	b.WriteString(a.At.Local().Format("15:04:05"))
	b.WriteString(" ")
	b.WriteString(a.Kind)
	for _, kv := range [][2]string{
		{"member", a.MemberID},
		{"name", a.Name},
		{"action", a.Action},
		{"outcome", a.Outcome},
		{"detail", a.Detail},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&b, " %s=%s", kv[0], kv[1])
		}
	}
	fmt.Println(b.String())
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
