package domain

// Push event kinds
const (
	EventMessage = "message"
	EventAck     = "ack"
)

// PushEvent is the envelope delivered to live sessions
type PushEvent struct {
	Event   string       `json:"event"`
	Message *MessageView `json:"message"`
}
