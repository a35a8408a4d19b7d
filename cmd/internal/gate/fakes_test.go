package gate

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/volskaya/norman/cmd/internal/member"
	"github.com/volskaya/norman/cmd/internal/notify"
	"github.com/volskaya/norman/cmd/internal/platform"
)

const (
	testGuild    = "100"
	testOwner    = "1"
	roleApproved = "900"
	roleBot      = "901"
	roleAdmin    = "902"
)

type fakePlatform struct {
	mu         sync.Mutex
	members    map[string]platform.Member
	bans       []platform.Member
	bansErr    error
	actionErrs map[string]error
	calls      []string
}

func newFakePlatform(members ...platform.Member) *fakePlatform {
	p := &fakePlatform{members: make(map[string]platform.Member)}
	for _, m := range members {
		p.members[m.ID] = m
	}
	return p
}

// record logs call and returns the error injected for action, if any.
func (p *fakePlatform) record(action, call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	return p.actionErrs[action]
}

// failAction makes every later call of action ("kick", "add_role",
// "remove_role", "move") return err.
func (p *fakePlatform) failAction(action string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.actionErrs == nil {
		p.actionErrs = make(map[string]error)
	}
	p.actionErrs[action] = err
}

func (p *fakePlatform) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

func (p *fakePlatform) called(call string) bool {
	return slices.Contains(p.Calls(), call)
}

func (p *fakePlatform) Member(_ context.Context, _, userID string) (platform.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.members[userID]
	if !ok {
		return platform.Member{}, platform.ErrNotFound
	}
	return m, nil
}

func (p *fakePlatform) MemberByTag(_ context.Context, _, tag string) (platform.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.members {
		if m.Tag == tag {
			return m, nil
		}
	}
	return platform.Member{}, platform.ErrNotFound
}

func (p *fakePlatform) Members(context.Context, string) ([]platform.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]platform.Member, 0, len(p.members))
	for _, m := range p.members {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b platform.Member) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}

func (p *fakePlatform) Bans(context.Context, string) ([]platform.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bansErr != nil {
		return nil, p.bansErr
	}
	return slices.Clone(p.bans), nil
}

func (p *fakePlatform) setBans(bans []platform.Member, err error) {
	p.mu.Lock()
	p.bans, p.bansErr = bans, err
	p.mu.Unlock()
}

func (p *fakePlatform) Kick(_ context.Context, _, userID, _ string) error {
	return p.record("kick", "kick:"+userID)
}

func (p *fakePlatform) AddRole(_ context.Context, _, userID, roleID string) error {
	return p.record("add_role", "add_role:"+userID+":"+roleID)
}

func (p *fakePlatform) RemoveRole(_ context.Context, _, userID, roleID string) error {
	return p.record("remove_role", "remove_role:"+userID+":"+roleID)
}

func (p *fakePlatform) Move(_ context.Context, _, userID, channelID string) error {
	return p.record("move", "move:"+userID+":"+channelID)
}

type sentNotice struct {
	to     string
	notice notify.Notice
}

// fakeNotifier records every attempted delivery, including failed ones.
type fakeNotifier struct {
	mu       sync.Mutex
	direct   []sentNotice
	channels []sentNotice
	err      error
}

// failWith makes every later delivery return err.
func (n *fakeNotifier) failWith(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

func (n *fakeNotifier) DirectMessage(_ context.Context, userID string, msg notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.direct = append(n.direct, sentNotice{to: userID, notice: msg})
	return n.err
}

func (n *fakeNotifier) ChannelMessage(_ context.Context, channelID string, msg notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels = append(n.channels, sentNotice{to: channelID, notice: msg})
	return n.err
}

func kindsTo(list []sentNotice, to string) []notify.Kind {
	var out []notify.Kind
	for _, s := range list {
		if s.to == to {
			out = append(out, s.notice.Kind)
		}
	}
	return out
}

func (n *fakeNotifier) DirectKinds(to string) []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	return kindsTo(n.direct, to)
}

func (n *fakeNotifier) ChannelKinds(to string) []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	return kindsTo(n.channels, to)
}

type harness struct {
	svc      *Service
	store    *member.Store
	platform *fakePlatform
	notifier *fakeNotifier
}

func testRoles() []platform.Role {
	return []platform.Role{
		{ID: roleApproved, Name: "approved"},
		{ID: roleBot, Name: "bot", Color: 0x123456, Perms: platform.Permissions{Kick: true, Ban: true, Move: true, ManageRoles: true}},
		{ID: roleAdmin, Name: "admins"},
	}
}

func testConfig() Config {
	return Config{
		GuildID:      testGuild,
		OwnerID:      testOwner,
		ApprovedRole: RoleRef{ID: roleApproved},
		BotRole:      RoleRef{ID: roleBot},
		AdminRole:    RoleRef{Name: "admins"},
		KickTimeout:  5 * time.Second,
		KickEnabled:  true,
	}
}

// newHarness builds a service whose guild is already available, without
// triggering the availability sweep.
func newHarness(t *testing.T, cfg Config, members ...platform.Member) *harness {
	t.Helper()

	st, err := member.NewStore(member.NewMemoryBackend())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	pf := newFakePlatform(members...)
	n := &fakeNotifier{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := New(cfg, st, pf, n, log)
	svc.guild = guildState{ID: testGuild, Name: "Test Guild", OwnerID: "2", Available: true}
	svc.selfID, svc.selfName = "999", "norman"
	svc.roles.Reconcile(testRoles())
	t.Cleanup(svc.Close)

	return &harness{svc: svc, store: st, platform: pf, notifier: n}
}

func newMember(id, tag string, roles ...string) platform.Member {
	return platform.Member{
		ID:       id,
		GuildID:  testGuild,
		Username: tag,
		Tag:      tag,
		Status:   platform.StatusOnline,
		RoleIDs:  roles,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type challengeResult struct {
	outcome Outcome
	err     error
}

func runChallenge(ctx context.Context, s *Service, m platform.Member) <-chan challengeResult {
	done := make(chan challengeResult, 1)
	go func() {
		o, err := s.Challenge(ctx, m)
		done <- challengeResult{outcome: o, err: err}
	}()
	return done
}

func mustAddKey(t *testing.T, st *member.Store, id string) member.Record {
	t.Helper()
	rec, err := st.SetApproval(context.Background(), member.Identity{ID: id}, false)
	if err != nil {
		t.Fatalf("set approval: %v", err)
	}
	return rec
}
