package platform

// EventKind names an inbound platform event.
type EventKind string

const (
	KindReady            EventKind = "ready"
	KindGuildAvailable   EventKind = "guild.available"
	KindGuildUnavailable EventKind = "guild.unavailable"
	KindMemberJoined     EventKind = "member.joined"
	KindMemberUpdated    EventKind = "member.updated"
	KindMemberRemoved    EventKind = "member.removed"
	KindMemberBanned     EventKind = "member.banned"
	KindMessageReceived  EventKind = "message.received"
	KindRoleCreated      EventKind = "role.created"
	KindRoleUpdated      EventKind = "role.updated"
	KindRoleDeleted      EventKind = "role.deleted"
)

// Event is any inbound platform notification.
type Event interface {
	Kind() EventKind
}

// Ready is emitted once the gateway session is established.
type Ready struct {
	SelfID   string
	SelfName string
	GuildIDs []string
}

// GuildAvailable is emitted when a guild becomes reachable (initial load or recovery).
type GuildAvailable struct {
	Guild Guild
}

// GuildUnavailable is emitted on a guild outage.
type GuildUnavailable struct {
	GuildID string
}

// MemberJoined is emitted when a member joins a guild.
type MemberJoined struct {
	Member Member
}

// MemberUpdated covers rename, role change and presence change.
// Before is nil when the previous state is unknown.
type MemberUpdated struct {
	Before *Member
	After  Member
}

// MemberRemoved is emitted when a member leaves or is kicked.
type MemberRemoved struct {
	Member Member
}

// MemberBanned is emitted when a user is banned from a guild.
type MemberBanned struct {
	GuildID string
	User    Member
}

// MessageReceived wraps an inbound chat message.
type MessageReceived struct {
	Message Message
}

// RoleCreated is emitted when a guild role is created.
type RoleCreated struct {
	GuildID string
	Role    Role
}

// RoleUpdated is emitted when a guild role changes. Before is nil when unknown.
type RoleUpdated struct {
	GuildID string
	Before  *Role
	After   Role
}

// RoleDeleted is emitted when a guild role is deleted.
type RoleDeleted struct {
	GuildID string
	RoleID  string
}

func (Ready) Kind() EventKind            { return KindReady }
func (GuildAvailable) Kind() EventKind   { return KindGuildAvailable }
func (GuildUnavailable) Kind() EventKind { return KindGuildUnavailable }
func (MemberJoined) Kind() EventKind     { return KindMemberJoined }
func (MemberUpdated) Kind() EventKind    { return KindMemberUpdated }
func (MemberRemoved) Kind() EventKind    { return KindMemberRemoved }
func (MemberBanned) Kind() EventKind     { return KindMemberBanned }
func (MessageReceived) Kind() EventKind  { return KindMessageReceived }
func (RoleCreated) Kind() EventKind      { return KindRoleCreated }
func (RoleUpdated) Kind() EventKind      { return KindRoleUpdated }
func (RoleDeleted) Kind() EventKind      { return KindRoleDeleted }
