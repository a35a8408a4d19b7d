package gate

import (
	"strings"
	"sync"

	"github.com/volskaya/norman/cmd/internal/platform"
)

// RoleRef names a configured role either by its ID or by its display name.
// A name reference follows renames of the role it resolved to.
type RoleRef struct {
	ID   string
	Name string
}

// ParseRoleRef treats an all-digit value as an ID and anything else as a name.
func ParseRoleRef(v string) RoleRef {
	v = strings.TrimSpace(v)
	if v == "" {
		return RoleRef{}
	}
	if isSnowflake(v) {
		return RoleRef{ID: v}
	}
	return RoleRef{Name: v}
}

// IsZero reports whether the reference is unset.
func (r RoleRef) IsZero() bool { return r.ID == "" && r.Name == "" }

// Matches reports whether role is the one referenced.
func (r RoleRef) Matches(role platform.Role) bool {
	if r.ID != "" {
		return r.ID == role.ID
	}
	return r.Name != "" && r.Name == role.Name
}

func (r RoleRef) String() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Name
}

// Slot is one of the roles the bot manages.
type Slot int

const (
	SlotApproved Slot = iota
	SlotBot
	SlotAdmin
	slotCount
)

func (s Slot) String() string {
	switch s {
	case SlotApproved:
		return "approved"
	case SlotBot:
		return "bot"
	case SlotAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// RoleTable tracks which live role each slot resolves to.
type RoleTable struct {
	mu       sync.RWMutex
	refs     [slotCount]RoleRef
	resolved [slotCount]*platform.Role
}

// NewRoleTable returns an unresolved table for the given references.
func NewRoleTable(approved, bot, admin RoleRef) *RoleTable {
	t := &RoleTable{}
	t.refs[SlotApproved] = approved
	t.refs[SlotBot] = bot
	t.refs[SlotAdmin] = admin
	return t
}

// Reconcile resolves every slot against the full guild role list.
func (t *RoleTable) Reconcile(roles []platform.Role) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for slot := range t.refs {
		t.resolved[slot] = nil
		for _, r := range roles {
			if t.refs[slot].Matches(r) {
				role := r
				t.resolved[slot] = &role
				break
			}
		}
	}
}

// OnCreate resolves unresolved slots that reference the new role.
func (t *RoleTable) OnCreate(role platform.Role) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for slot := range t.refs {
		if t.resolved[slot] == nil && t.refs[slot].Matches(role) {
			r := role
			t.resolved[slot] = &r
		}
	}
}

// OnUpdate refreshes slots bound to the updated role and returns the slots
// that changed. Name references follow a rename.
func (t *RoleTable) OnUpdate(role platform.Role) []Slot {
	t.mu.Lock()
	defer t.mu.Unlock()

	var changed []Slot
	for slot := range t.refs {
		cur := t.resolved[slot]
		switch {
		case cur != nil && cur.ID == role.ID:
			if t.refs[slot].ID == "" {
				t.refs[slot].Name = role.Name
			}
		case cur == nil && t.refs[slot].Matches(role):
		default:
			continue
		}
		r := role
		t.resolved[slot] = &r
		changed = append(changed, Slot(slot))
	}
	return changed
}

// OnDelete unbinds slots that resolved to roleID.
func (t *RoleTable) OnDelete(roleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for slot := range t.resolved {
		if t.resolved[slot] != nil && t.resolved[slot].ID == roleID {
			t.resolved[slot] = nil
		}
	}
}

// Resolved returns the live role bound to slot.
func (t *RoleTable) Resolved(slot Slot) (platform.Role, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if r := t.resolved[slot]; r != nil {
		return *r, true
	}
	return platform.Role{}, false
}

// Ref returns the current reference for slot.
func (t *RoleTable) Ref(slot Slot) RoleRef {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refs[slot]
}

// MemberHas reports whether m carries the role bound to slot.
func (t *RoleTable) MemberHas(m platform.Member, slot Slot) bool {
	r, ok := t.Resolved(slot)
	return ok && m.HasRole(r.ID)
}

// BotPermissions is the permission cache: the permissions of the bot role.
func (t *RoleTable) BotPermissions() platform.Permissions {
	r, ok := t.Resolved(SlotBot)
	if !ok {
		return platform.Permissions{}
	}
	return r.Perms
}

func isSnowflake(v string) bool {
	if v == "" {
		return false
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
