package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/volskaya/norman/cmd/internal/platform"
)

func (c *Client) registerHandlers() {
	s := c.session
	c.removers = append(c.removers,
		s.AddHandler(func(*discordgo.Session, *discordgo.Disconnect) { c.ready.Store(false) }),
		s.AddHandler(func(*discordgo.Session, *discordgo.Resumed) { c.ready.Store(true) }),
		s.AddHandler(c.onReady),
		s.AddHandler(c.onGuildCreate),
		s.AddHandler(c.onGuildDelete),
		s.AddHandler(c.onMemberAdd),
		s.AddHandler(c.onMemberUpdate),
		s.AddHandler(c.onMemberRemove),
		s.AddHandler(c.onBanAdd),
		s.AddHandler(c.onPresenceUpdate),
		s.AddHandler(c.onMessageCreate),
		s.AddHandler(c.onRoleCreate),
		s.AddHandler(c.onRoleUpdate),
		s.AddHandler(c.onRoleDelete),
	)
}

func (c *Client) emit(ev platform.Event) {
	c.sink(c.ctx(), ev)
}

// remember stores m as the latest snapshot and returns the previous one.
func (c *Client) remember(m platform.Member) *platform.Member {
	key := memberKey{guildID: m.GuildID, userID: m.ID}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.members[key]
	c.members[key] = m
	if !ok {
		return nil
	}
	return &prev
}

func (c *Client) forget(guildID, userID string) {
	c.mu.Lock()
	delete(c.members, memberKey{guildID: guildID, userID: userID})
	c.mu.Unlock()
}

func (c *Client) snapshot(guildID, userID string) (platform.Member, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.members[memberKey{guildID: guildID, userID: userID}]
	return m, ok
}

// presence returns the state-tracked status for a member.
func (c *Client) presence(guildID, userID string) platform.Status {
	p, err := c.session.State.Presence(guildID, userID)
	if err != nil || p == nil {
		return platform.StatusOffline
	}
	return toStatus(p.Status)
}

func (c *Client) rememberRole(guildID string, r platform.Role) *platform.Role {
	key := guildID + "/" + r.ID
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.roles[key]
	c.roles[key] = r
	if !ok {
		return nil
	}
	return &prev
}

func (c *Client) onReady(_ *discordgo.Session, e *discordgo.Ready) {
	ev := platform.Ready{}
	if e.User != nil {
		ev.SelfID = e.User.ID
		ev.SelfName = e.User.Username
	}
	for _, g := range e.Guilds {
		ev.GuildIDs = append(ev.GuildIDs, g.ID)
	}
	c.ready.Store(true)
	c.log.Info("gateway.ready", "self_id", ev.SelfID, "guilds", len(ev.GuildIDs))
	c.emit(ev)
}

func (c *Client) onGuildCreate(_ *discordgo.Session, e *discordgo.GuildCreate) {
	if e.Guild == nil || e.Unavailable {
		return
	}
	for _, r := range e.Roles {
		c.rememberRole(e.ID, fromRole(r))
	}
	for _, dm := range e.Members {
		c.remember(fromMember(dm, e.ID, c.presence(e.ID, userID(dm))))
	}
	c.emit(platform.GuildAvailable{Guild: fromGuild(e.Guild)})
}

func (c *Client) onGuildDelete(_ *discordgo.Session, e *discordgo.GuildDelete) {
	if e.Guild == nil {
		return
	}
	// Unavailable is set on an outage; a cleared flag means the bot was removed.
	c.log.Warn("gateway.guild.unavailable", "guild_id", e.ID, "outage", e.Unavailable)
	c.emit(platform.GuildUnavailable{GuildID: e.ID})
}

func (c *Client) onMemberAdd(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if e.Member == nil {
		return
	}
	m := fromMember(e.Member, e.GuildID, c.presence(e.GuildID, userID(e.Member)))
	c.remember(m)
	c.emit(platform.MemberJoined{Member: m})
}

func (c *Client) onMemberUpdate(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
	if e.Member == nil {
		return
	}
	status := c.presence(e.GuildID, userID(e.Member))
	if prev, ok := c.snapshot(e.GuildID, userID(e.Member)); ok {
		status = prev.Status
	}
	m := fromMember(e.Member, e.GuildID, status)
	before := c.remember(m)
	c.emit(platform.MemberUpdated{Before: before, After: m})
}

func (c *Client) onMemberRemove(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
	if e.Member == nil {
		return
	}
	m := fromMember(e.Member, e.GuildID, platform.StatusOffline)
	if prev, ok := c.snapshot(e.GuildID, m.ID); ok {
		m.RoleIDs = prev.RoleIDs
		if m.Tag == "" {
			m = prev
		}
	}
	c.forget(e.GuildID, m.ID)
	c.emit(platform.MemberRemoved{Member: m})
}

func (c *Client) onBanAdd(_ *discordgo.Session, e *discordgo.GuildBanAdd) {
	if e.User == nil {
		return
	}
	c.emit(platform.MemberBanned{GuildID: e.GuildID, User: fromUser(e.User, e.GuildID)})
}

// onPresenceUpdate turns presence changes into member updates, which is
// where status transitions are judged.
func (c *Client) onPresenceUpdate(_ *discordgo.Session, e *discordgo.PresenceUpdate) {
	if e.User == nil || e.User.ID == "" {
		return
	}
	status := toStatus(e.Status)

	prev, ok := c.snapshot(e.GuildID, e.User.ID)
	if !ok {
		dm, err := c.session.State.Member(e.GuildID, e.User.ID)
		if err != nil {
			return
		}
		prev = fromMember(dm, e.GuildID, platform.StatusOffline)
	}

	after := prev
	after.Status = status
	// Presence payloads may carry a partial user; only complete ones refresh identity.
	if e.User.Username != "" {
		u := fromUser(e.User, e.GuildID)
		after.Username, after.Tag, after.AvatarRef, after.Bot = u.Username, u.Tag, u.AvatarRef, u.Bot
	}
	before := c.remember(after)
	if before == nil {
		before = &prev
	}
	c.emit(platform.MemberUpdated{Before: before, After: after})
}

func (c *Client) onMessageCreate(_ *discordgo.Session, e *discordgo.MessageCreate) {
	if e.Message == nil || e.Author == nil {
		return
	}
	c.emit(platform.MessageReceived{Message: fromMessage(e.Message)})
}

func (c *Client) onRoleCreate(_ *discordgo.Session, e *discordgo.GuildRoleCreate) {
	if e.GuildRole == nil || e.Role == nil {
		return
	}
	r := fromRole(e.Role)
	c.rememberRole(e.GuildID, r)
	c.emit(platform.RoleCreated{GuildID: e.GuildID, Role: r})
}

func (c *Client) onRoleUpdate(_ *discordgo.Session, e *discordgo.GuildRoleUpdate) {
	if e.GuildRole == nil || e.Role == nil {
		return
	}
	r := fromRole(e.Role)
	before := c.rememberRole(e.GuildID, r)
	c.emit(platform.RoleUpdated{GuildID: e.GuildID, Before: before, After: r})
}

func (c *Client) onRoleDelete(_ *discordgo.Session, e *discordgo.GuildRoleDelete) {
	c.mu.Lock()
	delete(c.roles, e.GuildID+"/"+e.RoleID)
	c.mu.Unlock()
	c.emit(platform.RoleDeleted{GuildID: e.GuildID, RoleID: e.RoleID})
}

func userID(m *discordgo.Member) string {
	if m == nil || m.User == nil {
		return ""
	}
	return m.User.ID
}
