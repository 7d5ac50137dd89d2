package status

import (
	"time"
)

// Health is the coarse overall assessment exposed to operators, derived from
// the coordinator state and per-component probes.
type Health string

const (
	HealthNotStarted Health = "not-started"
	HealthStarting   Health = "starting"
	HealthHealthy    Health = "healthy"
	// HealthDegraded means the coordinator is running but at least one
	// component reports itself not running.
	HealthDegraded Health = "degraded"
	HealthStopping Health = "stopping"
	HealthStopped  Health = "stopped"
	HealthFailed   Health = "failed"
)

// Snapshot is a point-in-time, read-only view of the system. Capturing one
// never mutates lifecycle state.
type Snapshot struct {
	OverallHealth   Health          `json:"overall_health"`
	State           string          `json:"state"`
	RunID           string          `json:"run_id,omitempty"`
	FailedComponent string          `json:"failed_component,omitempty"`
	Components      map[string]bool `json:"components"`
	ActiveSessions  map[string]int  `json:"active_sessions"`
	CapturedAt      time.Time       `json:"captured_at"`
}

// RunningCount returns how many components report running.
func (s Snapshot) RunningCount() int {
	n := 0
	for _, running := range s.Components {
		if running {
			n++
		}
	}
	return n
}

// TotalSessions returns the sum of all active session counts.
func (s Snapshot) TotalSessions() int {
	n := 0
	for _, count := range s.ActiveSessions {
		n += count
	}
	return n
}
