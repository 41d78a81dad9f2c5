package webhook

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wadesk-backend/internal/domain"
	webhookService "wadesk-backend/internal/service/webhook"
	"wadesk-backend/pkg/logger"
	"wadesk-backend/pkg/response"
)

// EventHandler reconciles gateway callbacks into the message store
type EventHandler interface {
	HandleEvent(ctx context.Context, ev *domain.GatewayEvent) (*webhookService.Result, error)
}

// Handler handles gateway webhook callbacks
type Handler struct {
	events EventHandler
}

// NewHandler creates a new webhook handler
func NewHandler(events EventHandler) *Handler {
	return &Handler{events: events}
}

// Receive handles a gateway event
// POST /webhook/gateway
func (h *Handler) Receive(c *gin.Context) {
	var ev domain.GatewayEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	result, err := h.events.HandleEvent(c.Request.Context(), &ev)
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("Webhook event rejected",
			zap.String("event", ev.Event),
			zap.String("uid", ev.UID),
			zap.Error(err))
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Ping lets the gateway verify the callback URL
// GET /webhook/gateway
func (h *Handler) Ping(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}
