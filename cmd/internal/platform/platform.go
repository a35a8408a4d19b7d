// Package platform holds the chat-platform types the moderation core works
// with. Adapters (see platform/discord) translate gateway payloads into these
// values and map REST failures onto the sentinel errors below.
package platform

import (
	"errors"
	"slices"
)

var (
	// ErrPermissionDenied is returned when the bot lacks the right for an action.
	ErrPermissionDenied = errors.New("platform: permission denied")
	// ErrNotFound is returned when a member, role or channel does not exist.
	ErrNotFound = errors.New("platform: not found")
)

// Status is a member's presence.
type Status string

const (
	StatusOnline    Status = "online"
	StatusIdle      Status = "idle"
	StatusDND       Status = "dnd"
	StatusInvisible Status = "invisible"
	StatusOffline   Status = "offline"
)

// Online reports whether the member is connected in any visible state.
func (s Status) Online() bool {
	switch s {
	case StatusOnline, StatusIdle, StatusDND:
		return true
	default:
		return false
	}
}

// Member is a guild member (or a bare user when GuildID is empty).
type Member struct {
	ID        string
	GuildID   string
	Username  string
	Tag       string // username#discriminator, or username on accounts without one
	AvatarRef string
	Bot       bool
	Status    Status
	RoleIDs   []string
}

// HasRole reports whether the member carries roleID.
func (m Member) HasRole(roleID string) bool {
	return roleID != "" && slices.Contains(m.RoleIDs, roleID)
}

// Permissions is the subset of role permissions the bot acts on.
type Permissions struct {
	Kick        bool
	Ban         bool
	Move        bool
	ManageRoles bool
}

// Missing names the permissions that are not granted.
func (p Permissions) Missing() []string {
	var out []string
	if !p.Kick {
		out = append(out, "kick")
	}
	if !p.Ban {
		out = append(out, "ban")
	}
	if !p.ManageRoles {
		out = append(out, "manage roles")
	}
	return out
}

// Role is a guild role.
type Role struct {
	ID    string
	Name  string
	Color int
	Perms Permissions
}

// Guild is a snapshot of the target community.
type Guild struct {
	ID          string
	Name        string
	OwnerID     string
	Roles       []Role
	MemberCount int
}

// Message is an inbound chat message.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string // empty for direct messages
	AuthorID  string
	AuthorTag string
	AuthorBot bool
	Content   string
}

// Direct reports whether the message arrived in a private channel.
func (m Message) Direct() bool { return m.GuildID == "" }
