package member

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Record is the persisted moderation state of one member.
// JSON field names are the persisted layout and the HTTP response shape.
type Record struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	AvatarRef   string `json:"avatar_url"`
	Key         string `json:"key"`
	Approved    bool   `json:"approved"`
	Valid       bool   `json:"valid"`
}

// Identity is what a caller knows about a member when creating or approving it.
// An Identity with only an ID (HTTP add, "!add <id>") leaves display fields alone.
type Identity struct {
	ID          string
	DisplayName string
	AvatarRef   string
}

func (i Identity) hasDisplay() bool {
	return strings.TrimSpace(i.DisplayName) != ""
}

// HasKey reports whether a key has been assigned.
func (r Record) HasKey() bool { return r.Key != "" }

// IsBlank reports whether the record carries nothing beyond its id.
func (r Record) IsBlank() bool {
	return r.DisplayName == "" && r.AvatarRef == "" && r.Key == "" && !r.Approved && !r.Valid
}

func blank(id string) Record { return Record{ID: id} }

var keySpace = new(big.Int).Lsh(big.NewInt(1), 128)

// NewKey returns a fresh member key: 128 random bits rendered in decimal.
func NewKey() (string, error) {
	n, err := rand.Int(rand.Reader, keySpace)
	if err != nil {
		return "", fmt.Errorf("member key: %w", err)
	}
	return n.String(), nil
}

func validID(id string) bool {
	return strings.TrimSpace(id) != ""
}
