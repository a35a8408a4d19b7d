// Package notify builds the notices the bot sends to members and admins.
//
// A Notice is platform-neutral; the platform adapter renders it (Discord
// renders it as an embed). Builders never fail and never touch the network.
package notify

// Kind identifies a notice template.
type Kind string

const (
	KindKeyRequest      Kind = "key_request"
	KindKeyAccepted     Kind = "key_accepted"
	KindKeyDeclined     Kind = "key_declined"
	KindAlreadyApproved Kind = "already_approved"
	KindNotFound        Kind = "not_found"
	KindAmbiguous       Kind = "ambiguous"
	KindDeleted         Kind = "deleted"
	KindYouWereDeleted  Kind = "you_were_deleted"
	KindUnregistered    Kind = "unregistered"
	KindNotApproved     Kind = "not_approved"
	KindAdded           Kind = "added"
	KindStatus          Kind = "status"
	KindHey             Kind = "hey"
	KindBotRole         Kind = "bot_role"
)

// Colors used by the templates.
const (
	ColorRed    = 0xe74c3c
	ColorOrange = 0xe67e22
	ColorGreen  = 0x2ecc71
)

// Field is one name/value row of a notice.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Notice is a rendered-agnostic message.
type Notice struct {
	Kind        Kind
	Title       string
	Description string
	Color       int
	Fields      []Field
	Thumbnail   string
	Footer      string
}
