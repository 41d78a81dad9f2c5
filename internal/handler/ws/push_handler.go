package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/hub"
	"wadesk-backend/internal/middleware"
	"wadesk-backend/pkg/logger"
	"wadesk-backend/pkg/metrics"
	"wadesk-backend/pkg/response"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Sessions are push-only; inbound frames are read for control messages and discarded
	maxMessageSize = 4096

	sinkBuffer = 256
)

// Registry is the live session set sessions are attached to
type Registry interface {
	Register(owner domain.ParticipantRef, sink hub.Sink) *hub.Connection
	Unregister(conn *hub.Connection)
}

// PushHandler upgrades authenticated agents to a websocket push session
type PushHandler struct {
	registry Registry
	upgrader websocket.Upgrader
}

// NewPushHandler creates a websocket push handler. An empty origin list or
// "*" accepts any origin.
func NewPushHandler(registry Registry, allowedOrigins []string) *PushHandler {
	return &PushHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWS handles websocket upgrade requests
// GET /v1/ws
func (h *PushHandler) ServeWS(c *gin.Context) {
	owner, ok := middleware.Participant(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed",
			zap.String("participant_id", owner.ID),
			zap.Error(err))
		return
	}

	sink := hub.NewChannelSink(sinkBuffer)
	session := h.registry.Register(owner, sink)
	metrics.HubConnectionsTotal.WithLabelValues("ws").Inc()

	logger.Debug("WebSocket session opened",
		zap.String("participant_id", owner.ID),
		zap.Uint64("connection_id", session.ID))

	go h.writePump(conn, session, sink)
	go h.readPump(conn, session)
}

// readPump only services control frames and detects disconnects
func (h *PushHandler) readPump(conn *websocket.Conn, session *hub.Connection) {
	defer func() {
		h.registry.Unregister(session)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error",
					zap.String("participant_id", session.Owner.ID),
					zap.Error(err))
			}
			return
		}
	}
}

// writePump drains the sink until the hub closes it
func (h *PushHandler) writePump(conn *websocket.Conn, session *hub.Connection, sink *hub.ChannelSink) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.registry.Unregister(session)
		conn.Close()
	}()

	for {
		select {
		case payload, ok := <-sink.C():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
