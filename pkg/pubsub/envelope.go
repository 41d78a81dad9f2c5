package pubsub

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys of exported lifecycle events
const (
	KeyMessageCreated       = "message.created.v1"
	KeyMessageStatusChanged = "message.status_changed.v1"
)

// Meta describes one exported event
type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Time          time.Time `json:"time"`
	Producer      string    `json:"producer,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Envelope is the JSON body published to the exchange
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope wraps data with a fresh event id
func NewEnvelope(eventType, producer, correlationID string, data any) Envelope {
	return Envelope{
		Meta: Meta{
			ID:            uuid.NewString(),
			Type:          eventType,
			Time:          time.Now().UTC(),
			Producer:      producer,
			CorrelationID: correlationID,
		},
		Data: data,
	}
}
