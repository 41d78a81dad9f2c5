package domain

import "strings"

// Gateway event kinds
const (
	GatewayEventMessage = "message"
	GatewayEventAck     = "ack"
)

// Gateway message directions
const (
	DirectionInbound  = "i"
	DirectionOutbound = "o"
)

// GatewayContact is the remote party of a gateway message
type GatewayContact struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// GatewayBody is the payload of a gateway message
type GatewayBody struct {
	Text     string `json:"text,omitempty"`
	Caption  string `json:"caption,omitempty"`
	URL      string `json:"url,omitempty"`
	Name     string `json:"name,omitempty"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
}

// GatewayMessage is the message section of a gateway "message" event
type GatewayMessage struct {
	UID  string      `json:"uid"`
	CUID string      `json:"cuid,omitempty"`
	Dir  string      `json:"dir"`
	Type string      `json:"type"`
	Ack  int         `json:"ack"`
	Dtm  int64       `json:"dtm,omitempty"`
	Body GatewayBody `json:"body"`
}

// GatewayEvent is a webhook notification from the gateway
type GatewayEvent struct {
	Event   string          `json:"event"`
	Token   string          `json:"token,omitempty"`
	UID     string          `json:"uid,omitempty"`
	Contact *GatewayContact `json:"contact,omitempty"`
	Message *GatewayMessage `json:"message,omitempty"`

	// ack events
	MUID string `json:"muid,omitempty"`
	CUID string `json:"cuid,omitempty"`
	Ack  *int   `json:"ack,omitempty"`
}

// Phone returns the contact phone in E.164 form
func (c *GatewayContact) Phone() string {
	uid := strings.TrimSpace(c.UID)
	if uid == "" || strings.HasPrefix(uid, "+") {
		return uid
	}
	return "+" + uid
}
