package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ParticipantKind is the explicit tag of a participant reference.
// It is authoritative; the id prefix only mirrors it for debugging.
type ParticipantKind string

const (
	ParticipantUser     ParticipantKind = "user"
	ParticipantAdmin    ParticipantKind = "admin"
	ParticipantCustomer ParticipantKind = "customer"
)

// Valid reports whether k is a known participant kind
func (k ParticipantKind) Valid() bool {
	switch k {
	case ParticipantUser, ParticipantAdmin, ParticipantCustomer:
		return true
	}
	return false
}

// IsAgent is true for the local kinds that hold live sessions and unread counters
func (k ParticipantKind) IsAgent() bool {
	return k == ParticipantUser || k == ParticipantAdmin
}

func (k ParticipantKind) prefix() string {
	return string(k) + "-"
}

// NewParticipantID returns a fresh kind-prefixed id such as "customer-3f2a...".
// Prefixes are assigned here once and never rewritten.
func NewParticipantID(kind ParticipantKind) string {
	return kind.prefix() + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// ParticipantRef identifies a participant by (id, kind)
type ParticipantRef struct {
	ID   string          `json:"id"`
	Kind ParticipantKind `json:"kind"`
}

// Validate rejects empty ids, unknown kinds and ids whose prefix disagrees with the kind
func (r ParticipantRef) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("participant id is required")
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown participant kind %q", r.Kind)
	}
	if !strings.HasPrefix(r.ID, r.Kind.prefix()) {
		return fmt.Errorf("participant id %q does not match kind %q", r.ID, r.Kind)
	}
	return nil
}

// IsAgent is true for users and admins
func (r ParticipantRef) IsAgent() bool {
	return r.Kind.IsAgent()
}

// IsAdmin is true for admins
func (r ParticipantRef) IsAdmin() bool {
	return r.Kind == ParticipantAdmin
}

// KindFromRole maps a directory role onto the participant kind of an agent
func KindFromRole(role string) (ParticipantKind, error) {
	switch role {
	case RoleUser:
		return ParticipantUser, nil
	case RoleAdmin:
		return ParticipantAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", role)
}

// Participant is a conversation member with its unread counter.
// Customers always carry a zero counter.
type Participant struct {
	ParticipantRef
	UnreadCount int `json:"unread_count"`
}
