package middleware

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wadesk-backend/pkg/logger"
)

// Probe checks one dependency
type Probe func(ctx context.Context) error

const probeTimeout = 2 * time.Second

// HealthCheck reports 200 when every probe passes and 503 otherwise.
// Probes run concurrently under a shared deadline.
func HealthCheck(serviceName string, probes map[string]Probe) gin.HandlerFunc {
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
		defer cancel()

		results := make([]error, len(names))
		done := make(chan struct{}, len(names))
		for i, name := range names {
			go func(i int, probe Probe) {
				results[i] = probe(ctx)
				done <- struct{}{}
			}(i, probes[name])
		}
		for range names {
			<-done
		}

		status := http.StatusOK
		components := make(gin.H, len(names))
		for i, name := range names {
			if results[i] != nil {
				status = http.StatusServiceUnavailable
				components[name] = "down"
				logger.Warn("Health probe failed", zap.String("component", name), zap.Error(results[i]))
				continue
			}
			components[name] = "up"
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":     state,
			"service":    serviceName,
			"components": components,
			"time":       time.Now().UTC(),
		})
	}
}
