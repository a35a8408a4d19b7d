package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/volskaya/norman/cmd/internal/notify"
	"github.com/volskaya/norman/cmd/internal/platform"
)

const (
	membersPage = 1000
	bansPage    = 1000
	searchLimit = 100
)

// Member fetches one guild member, preferring the state cache.
func (c *Client) Member(ctx context.Context, guildID, userID string) (platform.Member, error) {
	if dm, err := c.session.State.Member(guildID, userID); err == nil {
		return fromMember(dm, guildID, c.presence(guildID, userID)), nil
	}
	dm, err := c.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Member{}, mapError("member", err)
	}
	return fromMember(dm, guildID, c.presence(guildID, userID)), nil
}

// MemberByTag finds a member by "name#discriminator" (or bare username).
func (c *Client) MemberByTag(ctx context.Context, guildID, tag string) (platform.Member, error) {
	tag = strings.TrimSpace(tag)
	name, _, _ := strings.Cut(tag, "#")
	if name == "" {
		return platform.Member{}, fmt.Errorf("discord member_by_tag: %w", platform.ErrNotFound)
	}

	if g, err := c.session.State.Guild(guildID); err == nil {
		for _, dm := range g.Members {
			if dm.User != nil && dm.User.String() == tag {
				return fromMember(dm, guildID, c.presence(guildID, dm.User.ID)), nil
			}
		}
	}

	found, err := c.session.GuildMembersSearch(guildID, name, searchLimit, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Member{}, mapError("member_by_tag", err)
	}
	for _, dm := range found {
		if dm.User != nil && dm.User.String() == tag {
			return fromMember(dm, guildID, c.presence(guildID, dm.User.ID)), nil
		}
	}
	return platform.Member{}, fmt.Errorf("discord member_by_tag %q: %w", tag, platform.ErrNotFound)
}

// Members pages through the full member list.
func (c *Client) Members(ctx context.Context, guildID string) ([]platform.Member, error) {
	var (
		out   []platform.Member
		after string
	)
	for {
		page, err := c.session.GuildMembers(guildID, after, membersPage, discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapError("members", err)
		}
		for _, dm := range page {
			out = append(out, fromMember(dm, guildID, c.presence(guildID, userID(dm))))
		}
		if len(page) < membersPage {
			return out, nil
		}
		after = userID(page[len(page)-1])
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// Bans pages through the ban list.
func (c *Client) Bans(ctx context.Context, guildID string) ([]platform.Member, error) {
	var (
		out   []platform.Member
		after string
	)
	for {
		page, err := c.session.GuildBans(guildID, bansPage, "", after, discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapError("bans", err)
		}
		for _, b := range page {
			if b.User != nil {
				out = append(out, fromUser(b.User, guildID))
			}
		}
		if len(page) < bansPage || page[len(page)-1].User == nil {
			return out, nil
		}
		after = page[len(page)-1].User.ID
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func (c *Client) Kick(ctx context.Context, guildID, userID, reason string) error {
	return mapError("kick", c.session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx)))
}

func (c *Client) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return mapError("add_role", c.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (c *Client) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return mapError("remove_role", c.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

// Move puts a member into a voice channel.
func (c *Client) Move(ctx context.Context, guildID, userID, channelID string) error {
	return mapError("move", c.session.GuildMemberMove(guildID, userID, &channelID, discordgo.WithContext(ctx)))
}

// DirectMessage opens (or reuses) a DM channel and sends n there.
func (c *Client) DirectMessage(ctx context.Context, userID string, n notify.Notice) error {
	ch, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return mapError("dm_channel", err)
	}
	return c.ChannelMessage(ctx, ch.ID, n)
}

// ChannelMessage posts n as an embed.
func (c *Client) ChannelMessage(ctx context.Context, channelID string, n notify.Notice) error {
	_, err := c.session.ChannelMessageSendEmbed(channelID, toEmbed(n), discordgo.WithContext(ctx))
	return mapError("send", err)
}
