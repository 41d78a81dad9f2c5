package ws

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/hub"
	"wadesk-backend/internal/middleware"
	"wadesk-backend/pkg/metrics"
	"wadesk-backend/pkg/response"
)

const sseKeepAlive = 25 * time.Second

// StreamHandler serves the same push events over server-sent events
type StreamHandler struct {
	registry  Registry
	keepAlive time.Duration
}

// NewStreamHandler creates an SSE push handler
func NewStreamHandler(registry Registry) *StreamHandler {
	return &StreamHandler{
		registry:  registry,
		keepAlive: sseKeepAlive,
	}
}

// ServeSSE streams push events until the client disconnects
// GET /v1/events
func (h *StreamHandler) ServeSSE(c *gin.Context) {
	owner, ok := middleware.Participant(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	sink := hub.NewChannelSink(sinkBuffer)
	session := h.registry.Register(owner, sink)
	defer h.registry.Unregister(session)
	metrics.HubConnectionsTotal.WithLabelValues("sse").Inc()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-done:
			return false
		case payload, ok := <-sink.C():
			if !ok {
				return false
			}
			c.SSEvent(eventName(payload), string(payload))
			return true
		case <-ticker.C:
			_, err := io.WriteString(w, ": keep-alive\n\n")
			return err == nil
		}
	})
}

// eventName reads the push kind so clients can listen per event type
func eventName(payload []byte) string {
	var ev struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Event == "" {
		return domain.EventMessage
	}
	return ev.Event
}
