package sla

import (
	"time"

	"github.com/bissquit/fieldservice-sla/internal/domain"
)

// UpdateDueStatus tells whether a fault's client communication is late.
type UpdateDueStatus struct {
	Severity        domain.Severity `json:"severity"`
	IntervalMinutes int             `json:"interval_minutes"`
	IsOverdue       bool            `json:"is_overdue"`
	LastUpdateAt    *time.Time      `json:"last_update_at"`
	// NextDueAt is nil once the service has been temporarily restored.
	NextDueAt *time.Time `json:"next_due_at"`
}

// UpdateInterval returns the maximum gap between updates for a severity.
func (e *Engine) UpdateInterval(sev domain.Severity) time.Duration {
	if d, ok := e.updateIntervals[sev]; ok {
		return d
	}
	return e.defaultUpdateInterval
}

// UpdateDueStatus checks the time since the last communication update, or
// since the fault started when none was logged, against the severity's
// interval. Restored faults are never overdue.
func (e *Engine) UpdateDueStatus(fault *domain.Fault, lastUpdate *time.Time, now time.Time) UpdateDueStatus {
	interval := e.UpdateInterval(fault.Severity)
	status := UpdateDueStatus{
		Severity:        fault.Severity,
		IntervalMinutes: int(interval / time.Minute),
		LastUpdateAt:    lastUpdate,
	}

	if fault.TemporarilyRestoredAt != nil {
		return status
	}

	ref := fault.StartTime()
	if lastUpdate != nil {
		ref = *lastUpdate
	}
	due := ref.Add(interval)
	status.NextDueAt = &due
	status.IsOverdue = now.After(due)

	return status
}
