package v1

import "time"

// Activity kinds.
const (
	ActivityMemberJoined    = "member_joined"
	ActivityMemberRemoved   = "member_removed"
	ActivityMemberBanned    = "member_banned"
	ActivityDecision        = "decision"
	ActivityChallenge       = "challenge"
	ActivityAdminAdd        = "admin_add"
	ActivityAdminApprove    = "admin_approve"
	ActivityAdminRemove     = "admin_remove"
	ActivityAdminInvalidate = "admin_invalidate"
	ActivitySweep           = "sweep"
)

// HelloPayload is sent by the client to initiate a session.
type HelloPayload struct{}

// HelloAckPayload is returned on a successful handshake.
type HelloAckPayload struct {
	SessionID string `json:"session_id"`
}

// Activity is one moderation event. Keys are never included.
type Activity struct {
	Kind     string    `json:"kind"`
	MemberID string    `json:"member_id,omitempty"`
	Name     string    `json:"name,omitempty"`
	Action   string    `json:"action,omitempty"`
	Outcome  string    `json:"outcome,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// ErrorPayload is the payload of TypeError.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
