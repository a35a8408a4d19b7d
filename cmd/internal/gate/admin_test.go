package gate

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/volskaya/norman/cmd/internal/member"
	"github.com/volskaya/norman/cmd/internal/notify"
	"github.com/volskaya/norman/cmd/internal/platform"
)

func TestAddMember_ByIDNotPresent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())

	rec, err := h.svc.AddMember(context.Background(), "10", false)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if rec.ID != "10" || !rec.HasKey() || rec.Approved || rec.Valid {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(h.platform.Calls()) != 0 {
		t.Fatalf("absent member must not be touched, calls=%v", h.platform.Calls())
	}
}

func TestAddMember_ApproveLiveMemberGrantsRole(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), newMember("10", "bob#0001"))

	rec, err := h.svc.AddMember(context.Background(), "bob#0001", true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if rec.ID != "10" || !rec.Approved || rec.DisplayName != "bob#0001" || !rec.Valid {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !h.platform.called("add_role:10:" + roleApproved) {
		t.Fatalf("expected role grant, calls=%v", h.platform.Calls())
	}
}

func TestAddMember_AlreadyApproved(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	seeded, err := h.store.SetApproval(context.Background(), member.Identity{ID: "10"}, true)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, err := h.svc.AddMember(context.Background(), "10", false)
	if !errors.Is(err, ErrAlreadyApproved) {
		t.Fatalf("err=%v", err)
	}
	if rec != seeded {
		t.Fatalf("rec=%+v want=%+v", rec, seeded)
	}
}

func TestAddMember_UnknownNameIsNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())

	if _, err := h.svc.AddMember(context.Background(), "ghost#0001", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestAddMember_OnlineMemberIsChallenged(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), newMember("10", "bob#0001"))

	rec, err := h.svc.AddMember(context.Background(), "10", false)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	waitFor(t, "pending challenge", func() bool { return h.svc.pending.Has("10") })

	h.svc.OfferResponse("10", rec.Key)
	waitFor(t, "approval", func() bool {
		got, err := h.store.Get(context.Background(), "10")
		return err == nil && got.Approved
	})
}

func TestAddMember_OfflineMemberIsNotChallenged(t *testing.T) {
	t.Parallel()

	m := newMember("10", "bob#0001")
	m.Status = platform.StatusOffline
	h := newHarness(t, testConfig(), m)

	if _, err := h.svc.AddMember(context.Background(), "10", false); err != nil {
		t.Fatalf("add: %v", err)
	}
	h.svc.Close()
	if got := h.notifier.DirectKinds("10"); len(got) != 0 {
		t.Fatalf("offline member was challenged, dms=%v", got)
	}
}

func TestRemoveMember_ByIDRequiresRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())

	if _, err := h.svc.RemoveMember(context.Background(), "10"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestRemoveMember_LiveMember(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), newMember("10", "bob#0001", roleApproved))
	seeded, err := h.store.SetApproval(context.Background(), member.Identity{ID: "10", DisplayName: "bob#0001"}, true)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, err := h.svc.RemoveMember(context.Background(), "bob#0001")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if rec != seeded {
		t.Fatalf("rec=%+v want=%+v", rec, seeded)
	}

	got, _ := h.store.Get(context.Background(), "10")
	if got != (member.Record{ID: "10"}) {
		t.Fatalf("record not reset: %+v", got)
	}
	for _, call := range []string{"remove_role:10:" + roleApproved, "kick:10"} {
		if !h.platform.called(call) {
			t.Fatalf("missing %s, calls=%v", call, h.platform.Calls())
		}
	}
	if got := h.notifier.DirectKinds("10"); !slices.Equal(got, []notify.Kind{notify.KindYouWereDeleted}) {
		t.Fatalf("dms=%v", got)
	}
}

func TestRemoveMember_StoredNameFallback(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	for _, id := range []string{"10", "11"} {
		if _, err := h.store.SetApproval(context.Background(), member.Identity{ID: id, DisplayName: "twin#0001"}, true); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if _, err := h.store.SetApproval(context.Background(), member.Identity{ID: "12", DisplayName: "solo#0001"}, true); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := h.svc.RemoveMember(context.Background(), "twin#0001"); !member.IsAmbiguous(err) {
		t.Fatalf("expected ambiguous, got %v", err)
	}
	rec, err := h.svc.RemoveMember(context.Background(), "solo#0001")
	if err != nil || rec.ID != "12" {
		t.Fatalf("rec=%+v err=%v", rec, err)
	}
}

func TestInvalidateMember(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), newMember("10", "bob#0001", roleApproved))
	if _, err := h.store.SetApproval(context.Background(), member.Identity{ID: "10", DisplayName: "bob#0001"}, true); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := h.svc.InvalidateMember(context.Background(), "10"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	got, _ := h.store.Get(context.Background(), "10")
	if got != (member.Record{ID: "10"}) {
		t.Fatalf("record not reset: %+v", got)
	}
	if !h.platform.called("kick:10") || !h.platform.called("remove_role:10:"+roleApproved) {
		t.Fatalf("calls=%v", h.platform.Calls())
	}
}

func TestInvalidateMember_AbsentIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	if err := h.svc.InvalidateMember(context.Background(), "10"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := h.svc.Lookup(context.Background(), "10"); !member.IsNotFound(err) {
		t.Fatalf("err=%v", err)
	}
}
