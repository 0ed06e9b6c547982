// Package health exposes liveness and readiness endpoints.
package health

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// ComponentHealth holds the health state of one dependency.
type ComponentHealth struct {
	Component string `json:"component"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
}
