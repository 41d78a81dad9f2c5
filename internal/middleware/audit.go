package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wadesk-backend/pkg/audit"
	"wadesk-backend/pkg/constants"
	"wadesk-backend/pkg/logger"
)

// AuditRecorder stores admin events
type AuditRecorder interface {
	Record(ctx context.Context, event *audit.Event) error
}

// Audit records every mutating request that reaches the handler chain.
// Reads are not recorded. Recording failures are logged and never fail the request.
func Audit(recorder AuditRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			return
		}

		actor, _ := Participant(c)
		status := c.Writer.Status()
		event := &audit.Event{
			ActorID:    actor.ID,
			Action:     c.Request.Method + " " + c.FullPath(),
			Resource:   c.Param("id"),
			StatusCode: status,
			Success:    status < http.StatusBadRequest,
			RequestID:  c.GetString("request_id"),
			IPAddress:  c.ClientIP(),
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), constants.SideEffectTimeout)
		defer cancel()
		if err := recorder.Record(ctx, event); err != nil {
			logger.Warn("Failed to record audit event",
				zap.String("action", event.Action),
				zap.String("actor_id", event.ActorID),
				zap.Error(err))
		}
	}
}
