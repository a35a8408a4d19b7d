package gate

import (
	"testing"

	"github.com/volskaya/norman/cmd/internal/platform"
)

func TestParseRoleRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want RoleRef
	}{
		{in: "", want: RoleRef{}},
		{in: "1234", want: RoleRef{ID: "1234"}},
		{in: " Approved ", want: RoleRef{Name: "Approved"}},
		{in: "12ab", want: RoleRef{Name: "12ab"}},
	}
	for _, tc := range tests {
		if got := ParseRoleRef(tc.in); got != tc.want {
			t.Fatalf("ParseRoleRef(%q)=%+v want=%+v", tc.in, got, tc.want)
		}
	}
}

func TestRoleTable_ReconcileAndPermissions(t *testing.T) {
	t.Parallel()

	tbl := NewRoleTable(RoleRef{Name: "approved"}, RoleRef{ID: roleBot}, RoleRef{})
	if tbl.BotPermissions() != (platform.Permissions{}) {
		t.Fatalf("unresolved bot role must grant nothing")
	}

	tbl.Reconcile(testRoles())

	if r, ok := tbl.Resolved(SlotApproved); !ok || r.ID != roleApproved {
		t.Fatalf("approved slot=%+v ok=%v", r, ok)
	}
	if _, ok := tbl.Resolved(SlotAdmin); ok {
		t.Fatalf("zero ref must not resolve")
	}
	if !tbl.BotPermissions().Kick {
		t.Fatalf("bot permissions not cached")
	}

	m := platform.Member{ID: "1", RoleIDs: []string{roleApproved}}
	if !tbl.MemberHas(m, SlotApproved) || tbl.MemberHas(m, SlotBot) {
		t.Fatalf("MemberHas mismatch")
	}
}

func TestRoleTable_IDRefDoesNotFollowName(t *testing.T) {
	t.Parallel()

	tbl := NewRoleTable(RoleRef{ID: roleApproved}, RoleRef{}, RoleRef{})
	tbl.Reconcile(testRoles())

	changed := tbl.OnUpdate(platform.Role{ID: roleApproved, Name: "renamed"})
	if len(changed) != 1 || changed[0] != SlotApproved {
		t.Fatalf("changed=%v", changed)
	}
	if ref := tbl.Ref(SlotApproved); ref != (RoleRef{ID: roleApproved}) {
		t.Fatalf("ref=%+v", ref)
	}
	if r, _ := tbl.Resolved(SlotApproved); r.Name != "renamed" {
		t.Fatalf("resolved=%+v", r)
	}
}

func TestPendingSet(t *testing.T) {
	t.Parallel()

	p := newPendingSet()
	ch, ok := p.Begin("1")
	if !ok {
		t.Fatalf("first begin failed")
	}
	if _, ok := p.Begin("1"); ok {
		t.Fatalf("second begin must fail")
	}
	if !p.Offer("1", "a") {
		t.Fatalf("first offer dropped")
	}
	if p.Offer("1", "b") {
		t.Fatalf("second offer must not block or queue")
	}
	if got := <-ch; got != "a" {
		t.Fatalf("got=%q", got)
	}
	if p.Offer("2", "x") {
		t.Fatalf("offer without challenge delivered")
	}
	p.End("1")
	if p.Len() != 0 || p.Has("1") {
		t.Fatalf("End did not release")
	}
}
