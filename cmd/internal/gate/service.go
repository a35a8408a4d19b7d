package gate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/volskaya/norman/cmd/internal/member"
	"github.com/volskaya/norman/cmd/internal/notify"
	"github.com/volskaya/norman/cmd/internal/platform"
	feedv1 "github.com/volskaya/norman/cmd/shared/contracts/feed/v1"
)

var (
	// ErrUnregisteredMember is returned by Challenge when the member has no key.
	ErrUnregisteredMember = errors.New("gate: member has no key")
	// ErrAlreadyApproved is returned by AddMember when the target is approved.
	ErrAlreadyApproved = errors.New("gate: member already approved")
	// ErrNotFound is returned when an admin target matches neither a live
	// member nor a stored record.
	ErrNotFound = errors.New("gate: member not found")
)

// Config holds the moderation settings for the target community.
type Config struct {
	GuildID          string
	OwnerID          string
	ApprovedRole     RoleRef
	BotRole          RoleRef
	AdminRole        RoleRef
	KickTimeout      time.Duration
	KickEnabled      bool
	DisableAdminRole bool
	DefaultChannelID string
	CommandPrefix    string
	InfoOnly         bool
}

// MemberStore is the persistence port. *member.Store implements it.
type MemberStore interface {
	Get(ctx context.Context, id string) (member.Record, error)
	GetByName(ctx context.Context, name string) (member.Record, error)
	UpsertBlank(ctx context.Context, id, displayName, avatarRef string) (bool, error)
	SetApproval(ctx context.Context, ident member.Identity, approved bool) (member.Record, error)
	RefreshIdentity(ctx context.Context, id, displayName, avatarRef string) (member.Record, error)
	Invalidate(ctx context.Context, id string, keepKey bool) error
	Delete(ctx context.Context, id string) (bool, error)
	MatchKey(ctx context.Context, id, response string) (bool, error)
}

// Platform is the set of chat platform actions the service performs.
// Lookups return platform.ErrNotFound for unknown members.
type Platform interface {
	Member(ctx context.Context, guildID, userID string) (platform.Member, error)
	MemberByTag(ctx context.Context, guildID, tag string) (platform.Member, error)
	Members(ctx context.Context, guildID string) ([]platform.Member, error)
	Bans(ctx context.Context, guildID string) ([]platform.Member, error)
	Kick(ctx context.Context, guildID, userID, reason string) error
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	Move(ctx context.Context, guildID, userID, channelID string) error
}

// Notifier delivers notices to members and channels.
type Notifier interface {
	DirectMessage(ctx context.Context, userID string, n notify.Notice) error
	ChannelMessage(ctx context.Context, channelID string, n notify.Notice) error
}

// Recorder receives moderation counters.
type Recorder interface {
	ChallengeStarted()
	ChallengeResolved(outcome string)
	PendingChallenges(n int)
	ActionApplied(action string, err error)
}

// ActivitySink receives moderation activity for the live feed.
type ActivitySink interface {
	Publish(a feedv1.Activity)
}

type nopRecorder struct{}

func (nopRecorder) ChallengeStarted()           {}
func (nopRecorder) ChallengeResolved(string)    {}
func (nopRecorder) PendingChallenges(int)       {}
func (nopRecorder) ActionApplied(string, error) {}

type nopSink struct{}

func (nopSink) Publish(feedv1.Activity) {}

// Option configures a Service.
type Option func(*Service)

// WithRecorder installs a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithActivitySink installs the live feed publisher.
func WithActivitySink(sink ActivitySink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithClock overrides the time source used for feed timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

type guildState struct {
	ID        string
	Name      string
	OwnerID   string
	Available bool
}

// Service owns all moderation state for one community.
type Service struct {
	log      *slog.Logger
	store    MemberStore
	platform Platform
	notifier Notifier
	recorder Recorder
	sink     ActivitySink
	now      func() time.Time

	cfg     Config
	roles   *RoleTable
	pending *pendingSet
	routes  map[platform.EventKind]handlerFunc

	mu              sync.RWMutex
	guild           guildState
	selfID          string
	selfName        string
	sweepBansNeeded bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lifeMu  sync.Mutex
	closed  bool

	infoOnce sync.Once
	infoDone chan struct{}
}

// New constructs a Service. Close must be called to stop running challenges.
func New(cfg Config, store MemberStore, pf Platform, n Notifier, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		log:      log,
		store:    store,
		platform: pf,
		notifier: n,
		recorder: nopRecorder{},
		sink:     nopSink{},
		now:      time.Now,
		cfg:      cfg,
		roles:    NewRoleTable(cfg.ApprovedRole, cfg.BotRole, cfg.AdminRole),
		pending:  newPendingSet(),
		guild:    guildState{ID: cfg.GuildID},
		baseCtx:  ctx,
		cancel:   cancel,
		infoDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes = s.dispatchTable()
	return s
}

// Close abandons running challenges and waits for them to return. Work
// started after Close is refused.
func (s *Service) Close() {
	s.lifeMu.Lock()
	s.closed = true
	s.cancel()
	s.lifeMu.Unlock()
	s.wg.Wait()
}

// spawn runs fn on a goroutine tracked by Close. It reports false, without
// running fn, once the service is closed.
func (s *Service) spawn(fn func(ctx context.Context)) bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.baseCtx)
	}()
	return true
}

// InfoDone is closed once the info report has been logged (InfoOnly mode).
func (s *Service) InfoDone() <-chan struct{} { return s.infoDone }

// Roles exposes the role table.
func (s *Service) Roles() *RoleTable { return s.roles }

// PendingCount returns the number of challenges awaiting a response.
func (s *Service) PendingCount() int { return s.pending.Len() }

func (s *Service) guildSnapshot() guildState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guild
}

func (s *Service) templates() notify.Templates {
	g := s.guildSnapshot()
	return notify.Templates{
		GuildName:   g.Name,
		KickTimeout: s.cfg.KickTimeout,
		KickEnabled: s.cfg.KickEnabled,
	}
}

func (s *Service) publish(a feedv1.Activity) {
	if a.At.IsZero() {
		a.At = s.now().UTC()
	}
	s.sink.Publish(a)
}

// isOwner reports whether id is the configured owner or the guild owner.
func (s *Service) isOwner(id string) bool {
	if id == "" {
		return false
	}
	return id == s.cfg.OwnerID || id == s.guildSnapshot().OwnerID
}

// ---- guarded platform actions ----

func (s *Service) kick(ctx context.Context, m platform.Member, reason string) {
	switch {
	case !s.cfg.KickEnabled:
		return
	case s.isOwner(m.ID):
		s.log.Info("action.kick.skip_owner", "member_id", m.ID)
		return
	case !s.roles.BotPermissions().Kick:
		s.log.Warn("action.kick.no_permission", "member_id", m.ID)
		return
	}
	err := s.platform.Kick(ctx, s.cfg.GuildID, m.ID, reason)
	s.recorder.ActionApplied("kick", err)
	s.logAction("kick", m.ID, err)
}

func (s *Service) addRole(ctx context.Context, m platform.Member) {
	role, ok := s.roles.Resolved(SlotApproved)
	if !ok {
		s.log.Warn("action.add_role.unresolved", "member_id", m.ID, "role", s.roles.Ref(SlotApproved).String())
		return
	}
	if m.HasRole(role.ID) {
		return
	}
	if !s.roles.BotPermissions().ManageRoles {
		s.log.Warn("action.add_role.no_permission", "member_id", m.ID)
		return
	}
	err := s.platform.AddRole(ctx, s.cfg.GuildID, m.ID, role.ID)
	s.recorder.ActionApplied("add_role", err)
	s.logAction("add_role", m.ID, err)
}

func (s *Service) removeRole(ctx context.Context, m platform.Member) {
	role, ok := s.roles.Resolved(SlotApproved)
	if !ok || !m.HasRole(role.ID) {
		return
	}
	if !s.roles.BotPermissions().ManageRoles {
		s.log.Warn("action.remove_role.no_permission", "member_id", m.ID)
		return
	}
	err := s.platform.RemoveRole(ctx, s.cfg.GuildID, m.ID, role.ID)
	s.recorder.ActionApplied("remove_role", err)
	s.logAction("remove_role", m.ID, err)
}

func (s *Service) move(ctx context.Context, m platform.Member) {
	if s.cfg.DefaultChannelID == "" || !s.roles.BotPermissions().Move {
		return
	}
	err := s.platform.Move(ctx, s.cfg.GuildID, m.ID, s.cfg.DefaultChannelID)
	s.recorder.ActionApplied("move", err)
	s.logAction("move", m.ID, err)
}

// deny removes an unapproved member: kick when enabled, else revoke the role.
func (s *Service) deny(ctx context.Context, m platform.Member, reason string) {
	if s.cfg.KickEnabled {
		s.kick(ctx, m, reason)
		return
	}
	s.removeRole(ctx, m)
}

// denyWithNotice tells m why they are being removed, then denies them.
// Owners are left alone and are not notified.
func (s *Service) denyWithNotice(ctx context.Context, m platform.Member, n notify.Notice, reason string) {
	if s.isOwner(m.ID) {
		s.log.Info("action.deny.skip_owner", "member_id", m.ID, "reason", reason)
		return
	}
	s.dm(ctx, m.ID, n)
	s.deny(ctx, m, reason)
}

func (s *Service) logAction(action, memberID string, err error) {
	switch {
	case err == nil:
		s.log.Info("action."+action, "member_id", memberID)
	case errors.Is(err, platform.ErrPermissionDenied):
		s.log.Warn("action."+action+".denied", "member_id", memberID, "err", err)
	case errors.Is(err, platform.ErrNotFound):
		s.log.Info("action."+action+".gone", "member_id", memberID)
	default:
		s.log.Error("action."+action+".fail", "member_id", memberID, "err", err)
	}
}

func (s *Service) dm(ctx context.Context, userID string, n notify.Notice) {
	if err := s.notifier.DirectMessage(ctx, userID, n); err != nil {
		s.log.Warn("notify.fail", "kind", string(n.Kind), "member_id", userID, "err", err)
	}
}

func (s *Service) reply(ctx context.Context, channelID string, n notify.Notice) {
	if err := s.notifier.ChannelMessage(ctx, channelID, n); err != nil {
		s.log.Warn("notify.fail", "kind", string(n.Kind), "channel_id", channelID, "err", err)
	}
}

// apply executes a decision for a live member.
func (s *Service) apply(ctx context.Context, m platform.Member, a Action) {
	switch a {
	case Grant:
		s.addRole(ctx, m)
	case Challenge:
		s.startChallenge(m)
	case Deny:
		s.denyWithNotice(ctx, m, s.templates().NotApproved(), "not approved")
	}
	if a != NoOp {
		s.publish(feedv1.Activity{
			Kind:     feedv1.ActivityDecision,
			MemberID: m.ID,
			Name:     m.Tag,
			Action:   a.String(),
		})
	}
}

// decide loads the record for m and returns the decision.
func (s *Service) decide(ctx context.Context, m platform.Member) (Action, error) {
	rec, err := s.store.Get(ctx, m.ID)
	found := err == nil
	if err != nil && !member.IsNotFound(err) {
		return NoOp, err
	}
	return Decide(rec, found, s.subject(m)), nil
}

func (s *Service) subject(m platform.Member) Subject {
	return Subject{Bot: m.Bot, HasApprovedRole: s.roles.MemberHas(m, SlotApproved)}
}
