package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "wadesk-backend/pkg/errors"
	"wadesk-backend/pkg/logger"
	"wadesk-backend/pkg/metrics"
	"wadesk-backend/pkg/response"
)

// DefaultRequestTimeout is used when none is configured
const DefaultRequestTimeout = 30 * time.Second

// Timeout bounds the request context. Handlers observe the deadline through
// c.Request.Context(); if nothing was written when it expires the client gets 504.
// Long-lived streams must not be mounted behind it.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}

		metrics.RequestTimeoutsTotal.WithLabelValues(c.Request.Method, c.FullPath()).Inc()
		logger.FromContext(ctx).Warn("Request timed out",
			zap.Duration("timeout", timeout),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path))

		if !c.Writer.Written() {
			response.Error(c, http.StatusGatewayTimeout, string(apperrors.ErrCodeTimeout), "Request timeout")
			c.Abort()
		}
	}
}
