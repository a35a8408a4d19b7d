package gate

import "github.com/volskaya/norman/cmd/internal/member"

// Action is the outcome of an access-control decision.
type Action int

const (
	// NoOp leaves the member alone.
	NoOp Action = iota
	// Grant gives the approved role to an approved member that lacks it.
	Grant
	// Challenge starts the key challenge.
	Challenge
	// Deny removes (or de-roles) an unapproved member without a key.
	Deny
)

func (a Action) String() string {
	switch a {
	case NoOp:
		return "noop"
	case Grant:
		return "grant"
	case Challenge:
		return "challenge"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Subject is the live-member context a decision needs.
type Subject struct {
	Bot             bool
	HasApprovedRole bool
}

// Decide maps a stored record and live context to an action.
// found is false when no record exists for the member.
func Decide(rec member.Record, found bool, s Subject) Action {
	switch {
	case s.Bot:
		return NoOp
	case found && rec.Approved && !s.HasApprovedRole:
		return Grant
	case found && rec.Approved:
		return NoOp
	case found && rec.HasKey():
		return Challenge
	default:
		return Deny
	}
}
