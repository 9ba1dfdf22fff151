package model

import "time"

// Health status values.
const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// HealthStatus is reported by every collaborator health check.
type HealthStatus struct {
	Service        string         `json:"service"`
	Status         string         `json:"status"`
	ResponseTimeMS int64          `json:"response_time_ms"`
	Error          string         `json:"error,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
}

// Healthy reports whether the status is healthy.
func (h HealthStatus) Healthy() bool {
	return h.Status == HealthHealthy
}

// SystemHealth combines the store and gateway health checks. Status is
// healthy only when every component is.
type SystemHealth struct {
	Status     string                  `json:"status"`
	Components map[string]HealthStatus `json:"components,omitempty"`
	Error      string                  `json:"error,omitempty"`
	CheckedAt  time.Time               `json:"checked_at"`
}

// Healthy reports whether the overall status is healthy.
func (h SystemHealth) Healthy() bool {
	return h.Status == HealthHealthy
}
