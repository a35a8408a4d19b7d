package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/volskaya/norman/cmd/internal/member"
	"github.com/volskaya/norman/cmd/internal/notify"
	"github.com/volskaya/norman/cmd/internal/platform"
)

type fakeGateway struct {
	sink  func(context.Context, platform.Event)
	ready atomic.Bool

	mu  sync.Mutex
	dms []notify.Kind
}

func (g *fakeGateway) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (g *fakeGateway) Ready() bool { return g.ready.Load() }

func (g *fakeGateway) Member(context.Context, string, string) (platform.Member, error) {
	return platform.Member{}, platform.ErrNotFound
}

func (g *fakeGateway) MemberByTag(context.Context, string, string) (platform.Member, error) {
	return platform.Member{}, platform.ErrNotFound
}

func (g *fakeGateway) Members(context.Context, string) ([]platform.Member, error) { return nil, nil }
func (g *fakeGateway) Bans(context.Context, string) ([]platform.Member, error)    { return nil, nil }
func (g *fakeGateway) Kick(context.Context, string, string, string) error         { return nil }
func (g *fakeGateway) AddRole(context.Context, string, string, string) error      { return nil }
func (g *fakeGateway) RemoveRole(context.Context, string, string, string) error   { return nil }
func (g *fakeGateway) Move(context.Context, string, string, string) error         { return nil }

func (g *fakeGateway) DirectMessage(_ context.Context, _ string, n notify.Notice) error {
	g.mu.Lock()
	g.dms = append(g.dms, n.Kind)
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) ChannelMessage(context.Context, string, notify.Notice) error { return nil }

func testAppConfig() Config {
	cfg := DefaultConfig()
	cfg.Token = "bot-token"
	cfg.OwnerID = "1"
	cfg.GuildID = "100"
	cfg.Role = RoleConfig{Approved: "900", Bot: "901", Admin: "902"}
	cfg.Backend = BackendMemory
	return cfg
}

func newTestApp(t *testing.T, cfg Config) (*App, *fakeGateway) {
	t.Helper()

	gw := &fakeGateway{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, log, func(_ Config, _ Logger, sink func(context.Context, platform.Event)) (Gateway, error) {
		gw.sink = sink
		return gw, nil
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.close)
	return a, gw
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestApp_Probes(t *testing.T) {
	t.Parallel()

	a, gw := newTestApp(t, testAppConfig())
	h := a.Handler()

	if rr := get(t, h, "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("healthz=%d", rr.Code)
	}
	if rr := get(t, h, "/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before gateway ready=%d", rr.Code)
	}
	gw.ready.Store(true)
	if rr := get(t, h, "/readyz"); rr.Code != http.StatusOK {
		t.Fatalf("readyz=%d", rr.Code)
	}
}

func TestApp_ControlSurfaceAndMetrics(t *testing.T) {
	t.Parallel()

	a, gw := newTestApp(t, testAppConfig())
	h := a.Handler()

	ctx := context.Background()
	gw.sink(ctx, platform.Ready{SelfID: "999", SelfName: "norman", GuildIDs: []string{"100"}})
	gw.sink(ctx, platform.GuildAvailable{Guild: platform.Guild{
		ID:      "100",
		Name:    "Test Guild",
		OwnerID: "2",
		Roles:   []platform.Role{{ID: "900", Name: "approved"}, {ID: "901", Name: "bots"}, {ID: "902", Name: "admins"}},
	}})

	rr := get(t, h, "/user/approve/42")
	if rr.Code != http.StatusOK {
		t.Fatalf("approve=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = get(t, h, "/user/42")
	if rr.Code != http.StatusOK {
		t.Fatalf("lookup=%d", rr.Code)
	}
	var rec member.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ID != "42" || !rec.Approved || rec.Key == "" {
		t.Fatalf("record=%+v", rec)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}

	if rr := get(t, h, "/user/remove/42"); rr.Code != http.StatusOK {
		t.Fatalf("remove=%d", rr.Code)
	}
	rr = get(t, h, "/user/42")
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Key != "" || rec.Approved {
		t.Fatalf("remove should clear the key: %+v", rec)
	}

	rr = get(t, h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`norman_http_requests_total{route="user.approve",status="200"} 1`,
		`norman_store_op_duration_seconds_count{op="set_approval"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestApp_JoinDeniesUnregistered(t *testing.T) {
	t.Parallel()

	cfg := testAppConfig()
	a, gw := newTestApp(t, cfg)

	ctx := context.Background()
	gw.sink(ctx, platform.Ready{SelfID: "999", GuildIDs: []string{"100"}})
	gw.sink(ctx, platform.GuildAvailable{Guild: platform.Guild{ID: "100", OwnerID: "2"}})
	gw.sink(ctx, platform.MemberJoined{Member: platform.Member{ID: "55", GuildID: "100", Tag: "eve#0005", Status: platform.StatusOnline}})

	if _, err := a.store.Get(ctx, "55"); err != nil {
		t.Fatalf("joined member should be recorded: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		gw.mu.Lock()
		n := len(gw.dms)
		gw.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no notice sent to the unregistered member")
		}
		time.Sleep(10 * time.Millisecond)
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.dms[0] != notify.KindNotApproved {
		t.Fatalf("notice=%q", gw.dms[0])
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testAppConfig()
	cfg.ServerPort = freePort(t)
	a, _ := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	url := "http://" + cfg.HTTPAddr() + "/healthz"
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestApp_InfoModeReturns(t *testing.T) {
	t.Parallel()

	cfg := testAppConfig()
	cfg.InfoOnly = true
	a, gw := newTestApp(t, cfg)

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	gw.sink(context.Background(), platform.GuildAvailable{Guild: platform.Guild{ID: "100", Name: "Test Guild"}})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("info mode did not return")
	}
}
