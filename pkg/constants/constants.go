// Package constants defines timings shared across the service.
package constants

import "time"

const (
	// SideEffectTimeout bounds best-effort work done after the primary write:
	// event export, presence updates and audit records
	SideEffectTimeout = 2 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second

	// PoolStatsInterval is how often connection pool gauges are refreshed
	PoolStatsInterval = 15 * time.Second

	// SettingsCacheTTL bounds how long a settings change made by another
	// replica can go unseen
	SettingsCacheTTL = 30 * time.Second
)
