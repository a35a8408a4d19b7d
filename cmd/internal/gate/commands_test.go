package gate

import (
	"context"
	"slices"
	"testing"

	"github.com/volskaya/norman/cmd/internal/member"
	"github.com/volskaya/norman/cmd/internal/notify"
	"github.com/volskaya/norman/cmd/internal/platform"
)

func sendCommand(h *harness, authorID, content string) {
	h.svc.Dispatch(context.Background(), platform.MessageReceived{Message: platform.Message{
		ID:        "m",
		ChannelID: "chan",
		GuildID:   testGuild,
		AuthorID:  authorID,
		AuthorTag: "author#0001",
		Content:   content,
	}})
}

func TestCommand_UnauthorizedIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), newMember("20", "rando#0001"))
	sendCommand(h, "20", "!add 10")

	if _, err := h.store.Get(context.Background(), "10"); !member.IsNotFound(err) {
		t.Fatalf("unauthorized add mutated the store, err=%v", err)
	}
	if got := h.notifier.ChannelKinds("chan"); len(got) != 0 {
		t.Fatalf("unexpected replies: %v", got)
	}
}

func TestCommand_OwnerAdds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	sendCommand(h, testOwner, "!add <@!10>")

	rec, err := h.store.Get(context.Background(), "10")
	if err != nil || !rec.HasKey() {
		t.Fatalf("rec=%+v err=%v", rec, err)
	}
	if got := h.notifier.ChannelKinds("chan"); !slices.Equal(got, []notify.Kind{notify.KindAdded}) {
		t.Fatalf("replies=%v", got)
	}

	sendCommand(h, testOwner, "!approve 10")
	sendCommand(h, testOwner, "!approve 10")
	want := []notify.Kind{notify.KindAdded, notify.KindAdded, notify.KindAlreadyApproved}
	if got := h.notifier.ChannelKinds("chan"); !slices.Equal(got, want) {
		t.Fatalf("replies=%v want=%v", got, want)
	}
}

func TestCommand_AdminRole(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), newMember("20", "mod#0001", roleAdmin))
	sendCommand(h, "20", "!remove 10")
	if got := h.notifier.ChannelKinds("chan"); !slices.Equal(got, []notify.Kind{notify.KindNotFound}) {
		t.Fatalf("replies=%v", got)
	}

	cfg := testConfig()
	cfg.DisableAdminRole = true
	h = newHarness(t, cfg, newMember("20", "mod#0001", roleAdmin))
	sendCommand(h, "20", "!remove 10")
	if got := h.notifier.ChannelKinds("chan"); len(got) != 0 {
		t.Fatalf("admin role must be ignored when disabled, replies=%v", got)
	}
}

func TestCommand_AmForAnyone(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	sendCommand(h, "20", "!am")

	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	if len(h.notifier.channels) != 1 || h.notifier.channels[0].notice.Color != notify.ColorRed {
		t.Fatalf("replies=%+v", h.notifier.channels)
	}
}

func TestCommand_HeyUsesBotRoleColor(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	sendCommand(h, testOwner, "!hey")

	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	if len(h.notifier.channels) != 1 || h.notifier.channels[0].notice.Color != 0x123456 {
		t.Fatalf("replies=%+v", h.notifier.channels)
	}
}

func TestParseTarget(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"<@123>":      "123",
		"<@!123>":     "123",
		" 123 ":       "123",
		"bob#0001":    "bob#0001",
		"<@abc>":      "<@abc>",
		"two words#1": "two words#1",
	}
	for in, want := range tests {
		if got := parseTarget(in); got != want {
			t.Fatalf("parseTarget(%q)=%q want=%q", in, got, want)
		}
	}
}
