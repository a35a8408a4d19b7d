package gate

import (
	"context"
	"slices"
	"strings"

	"github.com/volskaya/norman/cmd/internal/member"
	"github.com/volskaya/norman/cmd/internal/platform"
	feedv1 "github.com/volskaya/norman/cmd/shared/contracts/feed/v1"
)

type handlerFunc func(ctx context.Context, ev platform.Event) error

func (s *Service) dispatchTable() map[platform.EventKind]handlerFunc {
	return map[platform.EventKind]handlerFunc{
		platform.KindReady:            s.onReady,
		platform.KindGuildAvailable:   s.onGuildAvailable,
		platform.KindGuildUnavailable: s.onGuildUnavailable,
		platform.KindMemberJoined:     s.onMemberJoined,
		platform.KindMemberUpdated:    s.onMemberUpdated,
		platform.KindMemberRemoved:    s.onMemberRemoved,
		platform.KindMemberBanned:     s.onMemberBanned,
		platform.KindMessageReceived:  s.onMessage,
		platform.KindRoleCreated:      s.onRoleCreated,
		platform.KindRoleUpdated:      s.onRoleUpdated,
		platform.KindRoleDeleted:      s.onRoleDeleted,
	}
}

// Dispatch routes one platform event to its handler. Events for other
// guilds are dropped. While the target guild is unavailable only
// availability changes and challenge replies are handled.
func (s *Service) Dispatch(ctx context.Context, ev platform.Event) {
	h, ok := s.routes[ev.Kind()]
	if !ok {
		return
	}
	if gid := eventGuild(ev); gid != "" && gid != s.cfg.GuildID {
		return
	}
	switch ev.Kind() {
	case platform.KindReady, platform.KindGuildAvailable, platform.KindGuildUnavailable:
	default:
		if !s.guildSnapshot().Available {
			// Key replies arrive as direct messages and must still reach
			// their pending challenge.
			if e, ok := ev.(platform.MessageReceived); ok && e.Message.Direct() {
				s.offerDirect(e.Message)
				return
			}
			s.log.Debug("event.paused", "kind", string(ev.Kind()))
			return
		}
	}
	if err := h(ctx, ev); err != nil {
		s.log.Error("event.fail", "kind", string(ev.Kind()), "err", err)
	}
}

func eventGuild(ev platform.Event) string {
	switch e := ev.(type) {
	case platform.GuildAvailable:
		return e.Guild.ID
	case platform.GuildUnavailable:
		return e.GuildID
	case platform.MemberJoined:
		return e.Member.GuildID
	case platform.MemberUpdated:
		return e.After.GuildID
	case platform.MemberRemoved:
		return e.Member.GuildID
	case platform.MemberBanned:
		return e.GuildID
	case platform.MessageReceived:
		return e.Message.GuildID
	case platform.RoleCreated:
		return e.GuildID
	case platform.RoleUpdated:
		return e.GuildID
	case platform.RoleDeleted:
		return e.GuildID
	default:
		return ""
	}
}

func (s *Service) onReady(_ context.Context, ev platform.Event) error {
	e := ev.(platform.Ready)
	s.mu.Lock()
	s.selfID, s.selfName = e.SelfID, e.SelfName
	s.mu.Unlock()

	if !slices.Contains(e.GuildIDs, s.cfg.GuildID) {
		s.log.Warn("gateway.ready.guild_missing", "guild_id", s.cfg.GuildID, "guilds", len(e.GuildIDs))
	}
	s.log.Info("gateway.ready", "self_id", e.SelfID, "self_name", e.SelfName, "guilds", len(e.GuildIDs))
	return nil
}

func (s *Service) onGuildAvailable(_ context.Context, ev platform.Event) error {
	g := ev.(platform.GuildAvailable).Guild

	s.mu.Lock()
	s.guild = guildState{ID: g.ID, Name: g.Name, OwnerID: g.OwnerID, Available: true}
	s.mu.Unlock()
	s.roles.Reconcile(g.Roles)

	if s.cfg.InfoOnly {
		s.logInfo(g)
		s.infoOnce.Do(func() { close(s.infoDone) })
		return nil
	}

	for slot := SlotApproved; slot < slotCount; slot++ {
		if _, ok := s.roles.Resolved(slot); !ok && !s.roles.Ref(slot).IsZero() {
			s.log.Warn("guild.role_unresolved", "slot", slot.String(), "role", s.roles.Ref(slot).String())
		}
	}
	s.log.Info("guild.available", "guild_id", g.ID, "name", g.Name, "members", g.MemberCount)

	s.spawn(s.Sweep)
	return nil
}

func (s *Service) logInfo(g platform.Guild) {
	s.log.Info("info.guild", "guild_id", g.ID, "name", g.Name, "owner_id", g.OwnerID, "members", g.MemberCount)
	for _, r := range g.Roles {
		s.log.Info("info.role", "role_id", r.ID, "name", r.Name,
			"kick", r.Perms.Kick, "ban", r.Perms.Ban, "move", r.Perms.Move, "manage_roles", r.Perms.ManageRoles)
	}
}

func (s *Service) onGuildUnavailable(_ context.Context, _ platform.Event) error {
	s.mu.Lock()
	s.guild.Available = false
	s.mu.Unlock()
	s.log.Warn("guild.unavailable", "guild_id", s.cfg.GuildID)
	return nil
}

func (s *Service) onMemberJoined(ctx context.Context, ev platform.Event) error {
	m := ev.(platform.MemberJoined).Member
	if m.Bot {
		return nil
	}
	if _, err := s.store.UpsertBlank(ctx, m.ID, m.Tag, m.AvatarRef); err != nil {
		return err
	}
	s.publish(feedv1.Activity{Kind: feedv1.ActivityMemberJoined, MemberID: m.ID, Name: m.Tag})

	action, err := s.decide(ctx, m)
	if err != nil {
		return err
	}
	s.apply(ctx, m, action)
	return nil
}

func (s *Service) onMemberUpdated(ctx context.Context, ev platform.Event) error {
	e := ev.(platform.MemberUpdated)
	after := e.After

	s.mu.RLock()
	selfID := s.selfID
	s.mu.RUnlock()
	if after.ID == selfID {
		s.checkBotRole(ctx, e.Before, after)
		return nil
	}
	if after.Bot {
		return nil
	}

	if _, err := s.store.UpsertBlank(ctx, after.ID, after.Tag, after.AvatarRef); err != nil {
		return err
	}
	rec, err := s.store.Get(ctx, after.ID)
	if err != nil {
		return err
	}

	renamed := e.Before != nil && (e.Before.Tag != after.Tag || e.Before.AvatarRef != after.AvatarRef)
	if (renamed || !rec.Valid) && after.Tag != "" {
		if _, err := s.store.RefreshIdentity(ctx, after.ID, after.Tag, after.AvatarRef); err != nil {
			return err
		}
		if renamed {
			s.log.Info("member.renamed", "member_id", after.ID, "from", e.Before.Tag, "to", after.Tag)
		}
	}

	if e.Before != nil && e.Before.Status == after.Status {
		return nil
	}
	action, err := s.decide(ctx, after)
	if err != nil {
		return err
	}
	s.apply(ctx, after, action)
	return nil
}

// checkBotRole tells the guild owner when the bot receives its own role.
func (s *Service) checkBotRole(ctx context.Context, before *platform.Member, after platform.Member) {
	if before == nil || s.roles.MemberHas(*before, SlotBot) || !s.roles.MemberHas(after, SlotBot) {
		return
	}
	g := s.guildSnapshot()
	if g.OwnerID == "" {
		return
	}
	s.mu.RLock()
	name := s.selfName
	s.mu.RUnlock()
	s.dm(ctx, g.OwnerID, s.templates().BotRole(name, s.roles.BotPermissions().Missing()))
}

func (s *Service) onMemberRemoved(ctx context.Context, ev platform.Event) error {
	m := ev.(platform.MemberRemoved).Member
	rec, err := s.store.Get(ctx, m.ID)
	if member.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Approved || rec.HasKey() {
		if err := s.store.Invalidate(ctx, m.ID, true); err != nil {
			return err
		}
	}
	s.publish(feedv1.Activity{Kind: feedv1.ActivityMemberRemoved, MemberID: m.ID, Name: m.Tag})
	return nil
}

func (s *Service) onMemberBanned(ctx context.Context, ev platform.Event) error {
	u := ev.(platform.MemberBanned).User
	removed, err := s.store.Delete(ctx, u.ID)
	if err != nil {
		return err
	}
	if removed {
		s.log.Info("member.banned.deleted", "member_id", u.ID)
	}
	s.publish(feedv1.Activity{Kind: feedv1.ActivityMemberBanned, MemberID: u.ID, Name: u.Tag})
	return nil
}

func (s *Service) onMessage(ctx context.Context, ev platform.Event) error {
	msg := ev.(platform.MessageReceived).Message

	s.mu.RLock()
	selfID := s.selfID
	s.mu.RUnlock()
	if msg.AuthorBot || msg.AuthorID == selfID {
		return nil
	}

	if strings.HasPrefix(msg.Content, s.cfg.CommandPrefix) {
		s.command(ctx, msg)
		return nil
	}
	s.OfferResponse(msg.AuthorID, msg.Content)
	return nil
}

// offerDirect hands a direct message to a pending challenge without
// running commands.
func (s *Service) offerDirect(msg platform.Message) {
	s.mu.RLock()
	selfID := s.selfID
	s.mu.RUnlock()
	if msg.AuthorBot || msg.AuthorID == selfID || strings.HasPrefix(msg.Content, s.cfg.CommandPrefix) {
		return
	}
	if s.OfferResponse(msg.AuthorID, msg.Content) {
		s.log.Info("challenge.reply_while_paused", "member_id", msg.AuthorID)
	}
}

func (s *Service) onRoleCreated(_ context.Context, ev platform.Event) error {
	s.roles.OnCreate(ev.(platform.RoleCreated).Role)
	return nil
}

func (s *Service) onRoleUpdated(_ context.Context, ev platform.Event) error {
	e := ev.(platform.RoleUpdated)
	prev := s.roles.BotPermissions()
	changed := s.roles.OnUpdate(e.After)
	if !slices.Contains(changed, SlotBot) {
		return nil
	}
	next := s.roles.BotPermissions()
	s.log.Info("role.bot.updated", "role_id", e.After.ID, "missing", strings.Join(next.Missing(), ","))

	s.mu.Lock()
	rerun := s.sweepBansNeeded && !prev.Ban && next.Ban
	s.mu.Unlock()
	if rerun {
		s.spawn(s.SweepBans)
	}
	return nil
}

func (s *Service) onRoleDeleted(_ context.Context, ev platform.Event) error {
	s.roles.OnDelete(ev.(platform.RoleDeleted).RoleID)
	return nil
}
