package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/volskaya/norman/cmd/internal/notify"
	"github.com/volskaya/norman/cmd/internal/platform"
)

const avatarSize = "256"

func toStatus(s discordgo.Status) platform.Status {
	switch s {
	case discordgo.StatusOnline:
		return platform.StatusOnline
	case discordgo.StatusIdle:
		return platform.StatusIdle
	case discordgo.StatusDoNotDisturb:
		return platform.StatusDND
	case discordgo.StatusInvisible:
		return platform.StatusInvisible
	default:
		return platform.StatusOffline
	}
}

func fromUser(u *discordgo.User, guildID string) platform.Member {
	if u == nil {
		return platform.Member{GuildID: guildID, Status: platform.StatusOffline}
	}
	m := platform.Member{
		ID:       u.ID,
		GuildID:  guildID,
		Username: u.Username,
		Tag:      u.String(),
		Bot:      u.Bot,
		Status:   platform.StatusOffline,
	}
	if u.Avatar != "" {
		m.AvatarRef = u.AvatarURL(avatarSize)
	}
	return m
}

// fromMember converts a gateway member. status is the last known presence.
func fromMember(dm *discordgo.Member, guildID string, status platform.Status) platform.Member {
	if dm == nil {
		return platform.Member{GuildID: guildID, Status: platform.StatusOffline}
	}
	if dm.GuildID != "" {
		guildID = dm.GuildID
	}
	m := fromUser(dm.User, guildID)
	if status != "" {
		m.Status = status
	}
	m.RoleIDs = append([]string(nil), dm.Roles...)
	return m
}

func fromPermissions(bits int64) platform.Permissions {
	if bits&discordgo.PermissionAdministrator != 0 {
		return platform.Permissions{Kick: true, Ban: true, Move: true, ManageRoles: true}
	}
	return platform.Permissions{
		Kick:        bits&discordgo.PermissionKickMembers != 0,
		Ban:         bits&discordgo.PermissionBanMembers != 0,
		Move:        bits&discordgo.PermissionVoiceMoveMembers != 0,
		ManageRoles: bits&discordgo.PermissionManageRoles != 0,
	}
}

func fromRole(r *discordgo.Role) platform.Role {
	if r == nil {
		return platform.Role{}
	}
	return platform.Role{
		ID:    r.ID,
		Name:  r.Name,
		Color: r.Color,
		Perms: fromPermissions(r.Permissions),
	}
}

func fromGuild(g *discordgo.Guild) platform.Guild {
	out := platform.Guild{
		ID:          g.ID,
		Name:        g.Name,
		OwnerID:     g.OwnerID,
		MemberCount: g.MemberCount,
	}
	out.Roles = make([]platform.Role, 0, len(g.Roles))
	for _, r := range g.Roles {
		out.Roles = append(out.Roles, fromRole(r))
	}
	return out
}

func fromMessage(m *discordgo.Message) platform.Message {
	out := platform.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.AuthorTag = m.Author.String()
		out.AuthorBot = m.Author.Bot
	}
	return out
}

// toEmbed renders a notice as a Discord embed.
func toEmbed(n notify.Notice) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       n.Title,
		Description: n.Description,
		Color:       n.Color,
	}
	for _, f := range n.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if n.Thumbnail != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: n.Thumbnail}
	}
	if n.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: n.Footer}
	}
	return e
}
