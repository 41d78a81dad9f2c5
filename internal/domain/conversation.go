package domain

import (
	"fmt"
	"time"
)

// ConversationType tags the participant shape of a conversation
type ConversationType string

const (
	ConversationUserToUser     ConversationType = "user_to_user"
	ConversationUserToCustomer ConversationType = "user_to_customer"
)

// Valid reports whether t is a known conversation type
func (t ConversationType) Valid() bool {
	return t == ConversationUserToUser || t == ConversationUserToCustomer
}

// Conversation is a persisted two-party thread.
// LastMessageID is a best-effort cache of the newest message; the message log
// ordered by created_at is the source of truth.
type Conversation struct {
	ID            string           `json:"id" db:"conversation_id"`
	Type          ConversationType `json:"type" db:"type"`
	Participants  []Participant    `json:"participants"`
	LastMessageID *string          `json:"last_message_id,omitempty" db:"last_message_id"`
	LastMessage   *Message         `json:"-"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// NewUserToCustomer builds the single conversation between a customer and its assigned agent
func NewUserToCustomer(id string, agent, customer ParticipantRef, now time.Time) *Conversation {
	return &Conversation{
		ID:   id,
		Type: ConversationUserToCustomer,
		Participants: []Participant{
			{ParticipantRef: agent},
			{ParticipantRef: customer},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewUserToUser builds a conversation between two agents
func NewUserToUser(id string, a, b ParticipantRef, now time.Time) *Conversation {
	return &Conversation{
		ID:   id,
		Type: ConversationUserToUser,
		Participants: []Participant{
			{ParticipantRef: a},
			{ParticipantRef: b},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate enforces exactly two participants and the type/kind pairing
func (c *Conversation) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("unknown conversation type %q", c.Type)
	}
	if len(c.Participants) != 2 {
		return fmt.Errorf("conversation must have exactly 2 participants, got %d", len(c.Participants))
	}
	customers := 0
	for _, p := range c.Participants {
		if err := p.Validate(); err != nil {
			return err
		}
		if p.Kind == ParticipantCustomer {
			customers++
		}
	}
	if c.Participants[0].ID == c.Participants[1].ID {
		return fmt.Errorf("conversation participants must be distinct")
	}

	switch c.Type {
	case ConversationUserToCustomer:
		if customers != 1 {
			return fmt.Errorf("user_to_customer conversation needs exactly one customer")
		}
	case ConversationUserToUser:
		if customers != 0 {
			return fmt.Errorf("user_to_user conversation cannot contain a customer")
		}
	}
	return nil
}

// Participant returns the entry for participantID, or nil
func (c *Conversation) Participant(participantID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].ID == participantID {
			return &c.Participants[i]
		}
	}
	return nil
}

// HasParticipant reports whether participantID is a member
func (c *Conversation) HasParticipant(participantID string) bool {
	return c.Participant(participantID) != nil
}

// Customer returns the customer participant of a user_to_customer conversation
func (c *Conversation) Customer() (ParticipantRef, bool) {
	for _, p := range c.Participants {
		if p.Kind == ParticipantCustomer {
			return p.ParticipantRef, true
		}
	}
	return ParticipantRef{}, false
}

// Agents returns the user/admin participants
func (c *Conversation) Agents() []ParticipantRef {
	agents := make([]ParticipantRef, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.IsAgent() {
			agents = append(agents, p.ParticipantRef)
		}
	}
	return agents
}

// AgentIDsExcept returns agent ids other than excludeID
func (c *Conversation) AgentIDsExcept(excludeID string) []string {
	var ids []string
	for _, p := range c.Participants {
		if p.IsAgent() && p.ID != excludeID {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// CanAccess reports whether actor may read or post in the conversation.
// Admins may act in any conversation.
func (c *Conversation) CanAccess(actor ParticipantRef) bool {
	return actor.IsAdmin() || c.HasParticipant(actor.ID)
}

// ConversationFilter narrows conversation listings
type ConversationFilter struct {
	Type          ConversationType
	ParticipantID string // empty means every conversation (admins)
	Query         string
	Limit         int
	Offset        int
}
