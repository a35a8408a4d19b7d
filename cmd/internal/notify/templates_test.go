package notify

import (
	"strings"
	"testing"
	"time"
)

func fieldValue(n Notice, name string) (string, bool) {
	for _, f := range n.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func TestTemplates_TitleFallsBackToServer(t *testing.T) {
	t.Parallel()

	if got := (Templates{}).NotFound("x").Title; got != "Server" {
		t.Fatalf("title=%q want Server", got)
	}
	if got := (Templates{GuildName: "Lan"}).KeyRequest("a#1").Title; got != "Lan - Key Verification" {
		t.Fatalf("title=%q", got)
	}
}

func TestTemplates_KeyRequestTimeoutField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		tpl       Templates
		wantField bool
	}{
		{name: "kick with timeout", tpl: Templates{KickTimeout: 60 * time.Second, KickEnabled: true}, wantField: true},
		{name: "no kick", tpl: Templates{KickTimeout: 60 * time.Second}, wantField: false},
		{name: "unbounded", tpl: Templates{KickEnabled: true}, wantField: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			n := tt.tpl.KeyRequest("alice#0001")
			if n.Kind != KindKeyRequest {
				t.Fatalf("kind=%q", n.Kind)
			}
			if !strings.Contains(n.Description, "alice#0001") {
				t.Fatalf("description=%q", n.Description)
			}
			v, ok := fieldValue(n, fieldTimeout)
			if ok != tt.wantField {
				t.Fatalf("timeout field present=%v want %v", ok, tt.wantField)
			}
			if ok && !strings.Contains(v, "60 seconds") {
				t.Fatalf("timeout value=%q", v)
			}
		})
	}
}

func TestTemplates_DeclinedHidesKey(t *testing.T) {
	t.Parallel()

	n := (Templates{}).KeyDeclined("bob#2", "bob", "")
	if v, _ := fieldValue(n, fieldKey); v != keyHidden {
		t.Fatalf("key field=%q want hidden", v)
	}
	if v, _ := fieldValue(n, fieldUser); v != "bob#2, bob" {
		t.Fatalf("user field=%q", v)
	}
	if n.Color != ColorRed {
		t.Fatalf("color=%#x", n.Color)
	}
}

func TestTemplates_AddedRevealsKey(t *testing.T) {
	t.Parallel()

	add := (Templates{}).Added("c#3", "c#3", "123", "", false)
	if v, _ := fieldValue(add, fieldKey); v != "123" {
		t.Fatalf("key field=%q", v)
	}
	if v, _ := fieldValue(add, fieldUser); v != "c#3" {
		t.Fatalf("user field=%q", v)
	}
	if add.Color != ColorOrange || !strings.HasPrefix(add.Description, "Adding") {
		t.Fatalf("add notice=%+v", add)
	}

	approve := (Templates{}).Added("c#3", "", "123", "", true)
	if approve.Color != ColorGreen || !strings.HasPrefix(approve.Description, "Approving") {
		t.Fatalf("approve notice=%+v", approve)
	}
}

func TestTemplates_KickWording(t *testing.T) {
	t.Parallel()

	kick := Templates{KickEnabled: true}
	stay := Templates{}

	if !strings.Contains(kick.NotApproved().Description, "Disconnecting") {
		t.Fatalf("kick notice should mention disconnect")
	}
	if strings.Contains(stay.NotApproved().Description, "Disconnecting") {
		t.Fatalf("role-only notice should not mention disconnect")
	}
	if !strings.Contains(kick.YouWereDeleted().Description, "disconnecting") {
		t.Fatalf("kick deletion notice should mention disconnect")
	}
}

func TestTemplates_BotRoleMissingPermissions(t *testing.T) {
	t.Parallel()

	ok := (Templates{}).BotRole("norman", nil)
	if !strings.Contains(ok.Description, "look okay") {
		t.Fatalf("description=%q", ok.Description)
	}
	missing := (Templates{}).BotRole("norman", []string{"kick", "ban"})
	if !strings.Contains(missing.Description, "kick, ban") {
		t.Fatalf("description=%q", missing.Description)
	}
}

func TestTemplates_HeyDefaultColor(t *testing.T) {
	t.Parallel()

	if n := (Templates{}).Hey("7", 0); n.Color != ColorGreen || !strings.Contains(n.Description, "<@7>") {
		t.Fatalf("hey=%+v", n)
	}
	if n := (Templates{}).Hey("7", 0x123456); n.Color != 0x123456 {
		t.Fatalf("color=%#x", n.Color)
	}
}
