package notify

import (
	"fmt"
	"strings"
	"time"
)

const (
	keyVerification = "Key Verification"
	keyDeclined     = "Key Declined"
	fieldUser       = "User"
	fieldKey        = "Key"
	fieldStatus     = "Status"
	fieldTimeout    = "Timeout"
	keyHidden       = "*Hidden*"
	relogWarning    = "Note: There's a bug in Discord, which won't update the user panel, until you relog"
	checkmark       = ":white_check_mark:"
	cross           = ":x:"
	exclamation     = ":exclamation:"
)

// Templates renders notices for one community.
type Templates struct {
	GuildName   string
	KickTimeout time.Duration
	KickEnabled bool
}

func (t Templates) title(suffix string) string {
	name := t.GuildName
	if name == "" {
		name = "Server"
	}
	if suffix == "" {
		return name
	}
	return name + " - " + suffix
}

func (t Templates) basic(kind Kind, description string, color int) Notice {
	return Notice{Kind: kind, Title: t.title(""), Description: description, Color: color}
}

func userValue(tag, username string) string {
	if username == "" || username == tag {
		return tag
	}
	return tag + ", " + username
}

// KeyRequest asks a member to reply with their key.
func (t Templates) KeyRequest(tag string) Notice {
	n := Notice{
		Kind:        KindKeyRequest,
		Title:       t.title(keyVerification),
		Description: fmt.Sprintf("%s  **Please reply with the key linked with %s**", exclamation, tag),
		Color:       ColorOrange,
	}
	if t.KickTimeout > 0 && t.KickEnabled {
		n.Fields = append(n.Fields, Field{
			Name:  fieldTimeout,
			Value: fmt.Sprintf("You have %d seconds, before being disconnected", int(t.KickTimeout/time.Second)),
		})
	}
	return n
}

// KeyAccepted confirms a successful challenge.
func (t Templates) KeyAccepted(tag, username, key, avatar string) Notice {
	return Notice{
		Kind:  KindKeyAccepted,
		Title: t.title(keyVerification),
		Color: ColorGreen,
		Fields: []Field{
			{Name: fieldUser, Value: userValue(tag, username)},
			{Name: fieldKey, Value: key},
			{Name: fieldStatus, Value: "Approved  " + checkmark},
		},
		Thumbnail: avatar,
		Footer:    relogWarning,
	}
}

// KeyDeclined reports a wrong key or a timeout.
func (t Templates) KeyDeclined(tag, username, avatar string) Notice {
	return Notice{
		Kind:  KindKeyDeclined,
		Title: t.title(keyDeclined),
		Color: ColorRed,
		Fields: []Field{
			{Name: fieldUser, Value: userValue(tag, username)},
			{Name: fieldKey, Value: keyHidden},
			{Name: fieldStatus, Value: "Declined  " + cross},
		},
		Thumbnail: avatar,
	}
}

// AlreadyApproved tells an admin the target needs no action.
func (t Templates) AlreadyApproved(who, key string) Notice {
	return t.basic(KindAlreadyApproved, fmt.Sprintf("**%s**: Already Approved\n**Key:** %s", who, key), ColorOrange)
}

// NotFound reports a lookup miss.
func (t Templates) NotFound(who string) Notice {
	return t.basic(KindNotFound, fmt.Sprintf("**%s** was not found in the database", who), ColorRed)
}

// CouldNotFind reports a member that is not visible to the bot.
func (t Templates) CouldNotFind(who string) Notice {
	return t.basic(KindNotFound, fmt.Sprintf("Could not find %s", who), ColorRed)
}

// Ambiguous reports a display name shared by several records.
func (t Templates) Ambiguous(who string) Notice {
	return t.basic(KindAmbiguous, fmt.Sprintf("**%s** matches more than one member, use the id instead", who), ColorOrange)
}

// Deleted confirms a removal to the admin.
func (t Templates) Deleted(who string) Notice {
	return t.basic(KindDeleted, fmt.Sprintf("**%s** succesfully deleted", who), ColorGreen)
}

// YouWereDeleted tells a member their key was removed.
func (t Templates) YouWereDeleted() Notice {
	msg := "Your key was deleted from the server"
	if t.KickEnabled {
		msg += ", disconnecting you…"
	}
	return t.basic(KindYouWereDeleted, msg, ColorOrange)
}

// Unregistered tells a member without a key they cannot stay.
func (t Templates) Unregistered() Notice {
	return t.basic(KindUnregistered, "You need a valid **key**, to access this server", ColorOrange)
}

// NotApproved is sent before an unapproved member is removed.
func (t Templates) NotApproved() Notice {
	msg := fmt.Sprintf("You're not approved in **%s**", t.title(""))
	if t.KickEnabled {
		msg += "\nDisconnecting you…"
	}
	return t.basic(KindNotApproved, msg, ColorRed)
}

// Added confirms an admin add/approve and reveals the key.
func (t Templates) Added(tag, username, key, avatar string, approved bool) Notice {
	action, color, status := "Adding", ColorOrange, "Assigned key, not approved"
	if approved {
		action, color, status = "Approving", ColorGreen, "Approved  "+checkmark
	}
	return Notice{
		Kind:        KindAdded,
		Title:       t.title(""),
		Description: action + " " + tag,
		Color:       color,
		Fields: []Field{
			{Name: fieldUser, Value: userValue(tag, username)},
			{Name: fieldKey, Value: key},
			{Name: fieldStatus, Value: status},
		},
		Thumbnail: avatar,
	}
}

// Status answers "!am".
func (t Templates) Status(tag, username, avatar string, approved bool) Notice {
	color, status := ColorRed, "No key  "+cross
	if approved {
		color, status = ColorGreen, "Approved  "+checkmark
	}
	return Notice{
		Kind:  KindStatus,
		Title: t.title(tag),
		Color: color,
		Fields: []Field{
			{Name: fieldUser, Value: userValue(tag, username)},
			{Name: fieldKey, Value: keyHidden},
			{Name: fieldStatus, Value: status},
		},
		Thumbnail: avatar,
	}
}

// Hey answers "!hey" for admins.
func (t Templates) Hey(authorID string, color int) Notice {
	if color == 0 {
		color = ColorGreen
	}
	return t.basic(KindHey, fmt.Sprintf("Hey, **<@%s>** :flushed:", authorID), color)
}

// BotRole tells the guild owner the bot received its role.
func (t Templates) BotRole(botName string, missing []string) Notice {
	msg := "Okay, received the bot role"
	if len(missing) == 0 {
		msg += ". Permissions look okay  :heart:"
	} else {
		msg += fmt.Sprintf(", tho its missing %s permissions. I kinda need them, to do my work…", strings.Join(missing, ", "))
	}
	return Notice{Kind: KindBotRole, Title: botName, Description: msg, Color: 0xffffff}
}
