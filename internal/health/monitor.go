package health

import (
	"context"
	"sync"
	"time"
)

// Checker is a dependency that can report whether it is reachable.
type Checker interface {
	Health(ctx context.Context) error
}

// Component pairs a checker with its name and blast radius. Critical
// components take the whole service down; others only degrade it.
type Component struct {
	Name     string
	Checker  Checker
	Critical bool
}

// Monitor aggregates health status from the service's dependencies.
type Monitor struct {
	components []Component
	lastCheck  time.Time
	lastReport map[string]ComponentHealth
	mu         sync.Mutex
}

// NewMonitor creates a health monitor over the given components.
func NewMonitor(components []Component) *Monitor {
	return &Monitor{
		components: components,
		lastReport: make(map[string]ComponentHealth),
	}
}

// CheckHealth probes every component. Results are cached for 10s so
// probe traffic can't hammer the dependencies.
func (m *Monitor) CheckHealth(ctx context.Context) map[string]ComponentHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && len(m.lastReport) > 0 {
		return m.lastReport
	}

	report := make(map[string]ComponentHealth)
	for _, c := range m.components {
		ch := ComponentHealth{Component: c.Name, Status: StatusHealthy}
		if err := c.Checker.Health(ctx); err != nil {
			ch.Error = err.Error()
			if c.Critical {
				ch.Status = StatusCritical
			} else {
				ch.Status = StatusDegraded
			}
		}
		report[c.Name] = ch
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
