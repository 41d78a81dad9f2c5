package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalMessagePrefix marks ids minted by this system.
// Gateway echoes carrying it as cuid refer to a message we already hold.
const LocalMessagePrefix = "message-"

// GatewayMessagePrefix marks ids derived from a gateway uid
const GatewayMessagePrefix = "gw-"

// MessageKind is the payload type of a message
type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
	MessageVideo MessageKind = "video"
	MessageFile  MessageKind = "file"
)

// Valid reports whether k is a known kind
func (k MessageKind) Valid() bool {
	switch k {
	case MessageText, MessageImage, MessageVideo, MessageFile:
		return true
	}
	return false
}

// IsMedia is true for every kind that carries a stored object
func (k MessageKind) IsMedia() bool {
	return k == MessageImage || k == MessageVideo || k == MessageFile
}

// MessageStatus is the delivery state reported by the gateway
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

var statusRank = map[MessageStatus]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Valid reports whether s is a known status
func (s MessageStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == StatusFailed
}

// Terminal is true for read and failed
func (s MessageStatus) Terminal() bool {
	return s == StatusRead || s == StatusFailed
}

// CanTransition reports whether a status update from -> to may be applied.
// Statuses only move forward along pending, sent, delivered, read; any
// non-terminal status may fail. Equal statuses are not a transition.
func CanTransition(from, to MessageStatus) bool {
	if from == to || from.Terminal() || !to.Valid() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	return statusRank[to] > fromRank
}

// StatusFromAck maps a gateway ack code onto a status:
//
//	-1, 1 -> sent
//	0     -> pending
//	2     -> delivered
//	3     -> read
//	other -> failed
func StatusFromAck(code int) MessageStatus {
	switch code {
	case -1, 1:
		return StatusSent
	case 0:
		return StatusPending
	case 2:
		return StatusDelivered
	case 3:
		return StatusRead
	}
	return StatusFailed
}

// KindFromGatewayType maps the gateway message type onto a message kind
func KindFromGatewayType(t string) (MessageKind, error) {
	switch strings.ToLower(t) {
	case "chat", "text":
		return MessageText, nil
	case "image":
		return MessageImage, nil
	case "video":
		return MessageVideo, nil
	case "document", "audio", "ptt", "file":
		return MessageFile, nil
	}
	return "", fmt.Errorf("unsupported gateway message type %q", t)
}

// NewMessageID returns a fresh local message id
func NewMessageID() string {
	return LocalMessagePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsLocalMessageID reports whether id was minted by NewMessageID
func IsLocalMessageID(id string) bool {
	return strings.HasPrefix(id, LocalMessagePrefix)
}

// Media describes a stored object referenced by a message
type Media struct {
	Name       string `json:"name" db:"media_name"`
	Size       int64  `json:"size" db:"media_size"`
	StorageKey string `json:"storage_key" db:"media_key"`
	MimeType   string `json:"mime_type,omitempty" db:"media_mime"`
}

// Message is one entry of the message log.
// ID doubles as the gateway idempotency key (cuid).
type Message struct {
	ID             string         `json:"id" db:"message_id"`
	ConversationID string         `json:"conversation_id" db:"conversation_id"`
	Author         ParticipantRef `json:"author"`
	Kind           MessageKind    `json:"kind" db:"kind"`
	Text           string         `json:"text,omitempty" db:"text"`
	Media          *Media         `json:"media,omitempty"`
	Status         MessageStatus  `json:"status" db:"status"`
	IsStarred      bool           `json:"is_starred" db:"is_starred"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// Validate checks that the payload matches the kind: text messages carry
// only text, media messages carry a complete media triple.
func (m *Message) Validate() error {
	if m.ConversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	if err := m.Author.Validate(); err != nil {
		return fmt.Errorf("invalid author: %w", err)
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}

	if m.Kind == MessageText {
		if strings.TrimSpace(m.Text) == "" {
			return fmt.Errorf("text message requires text")
		}
		if m.Media != nil {
			return fmt.Errorf("text message cannot carry media")
		}
		return nil
	}

	if m.Media == nil || m.Media.Name == "" || m.Media.StorageKey == "" || m.Media.Size <= 0 {
		return fmt.Errorf("%s message requires media name, size and storage key", m.Kind)
	}
	if m.Text != "" {
		return fmt.Errorf("%s message cannot carry text", m.Kind)
	}
	return nil
}

// Preview is the text shown for the message in listings and search
func (m *Message) Preview() string {
	if m.Kind == MessageText {
		return m.Text
	}
	if m.Media != nil {
		return m.Media.Name
	}
	return ""
}

// MessageView is the client-facing rendering of a message.
// MediaURL is a short-lived signed URL produced at serialization time.
type MessageView struct {
	*Message
	MediaURL string `json:"media_url,omitempty"`
}

// MessageFilter narrows message listings
type MessageFilter struct {
	ConversationID string
	ParticipantID  string // restricts to conversations the participant belongs to
	Query          string
	StarredOnly    bool
	Limit          int
	Offset         int
}
