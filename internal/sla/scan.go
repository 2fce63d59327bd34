package sla

import (
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/fieldservice-sla/internal/domain"
)

// EventKind identifies a due SLA event.
type EventKind string

// Event kinds.
const (
	EventKindWarning EventKind = "sla_warning"
	EventKindBreach  EventKind = "sla_breach"
)

// Event is a warning or breach due for one milestone of one fault.
type Event struct {
	Kind          EventKind        `json:"event_type"`
	FaultID       string           `json:"fault_id"`
	Reference     string           `json:"reference,omitempty"`
	Severity      domain.Severity  `json:"severity"`
	Milestone     domain.Milestone `json:"milestone"`
	Deadline      time.Time        `json:"deadline"`
	TimeRemaining time.Duration    `json:"-"`
	TimeOverdue   time.Duration    `json:"-"`
	// Human-readable renderings of TimeRemaining / TimeOverdue.
	Remaining  string    `json:"time_remaining,omitempty"`
	Overdue    string    `json:"time_overdue,omitempty"`
	DetectedAt time.Time `json:"timestamp"`
}

// Key identifies the event for de-duplication across scans.
func (ev Event) Key() string {
	return fmt.Sprintf("%s/%s/%s", ev.FaultID, ev.Milestone, ev.Kind)
}

// ScanForDueEvents evaluates every milestone of every unresolved fault at
// now and returns the warnings and breaches that are due. The result does
// not depend on previous scans; callers suppress repeats themselves.
// Faults whose deadlines cannot be computed are skipped and reported in
// the returned error.
func (e *Engine) ScanForDueEvents(faults []*domain.Fault, now time.Time) (warnings, breaches []Event, err error) {
	var errs []error

	for _, fault := range faults {
		if fault == nil || fault.Status.IsResolved() {
			continue
		}

		deadlines, dErr := e.FaultDeadlines(fault)
		if dErr != nil {
			errs = append(errs, fmt.Errorf("fault %s: %w", fault.ID, dErr))
			continue
		}

		for _, m := range domain.Milestones {
			deadline := deadlines.For(m)
			if deadline == nil || fault.MilestoneActual(m) != nil {
				continue
			}

			ev := Event{
				FaultID:    fault.ID,
				Reference:  fault.Reference,
				Severity:   fault.Severity,
				Milestone:  m,
				Deadline:   *deadline,
				DetectedAt: now,
			}

			remaining := deadline.Sub(now)
			switch {
			case remaining <= 0:
				ev.Kind = EventKindBreach
				ev.TimeOverdue = -remaining
				ev.Overdue = FormatDuration(ev.TimeOverdue)
				breaches = append(breaches, ev)
			case remaining <= e.atRiskWindow:
				ev.Kind = EventKindWarning
				ev.TimeRemaining = remaining
				ev.Remaining = FormatDuration(remaining)
				warnings = append(warnings, ev)
			}
		}
	}

	return warnings, breaches, errors.Join(errs...)
}

// FormatDuration renders whole minutes, switching to "Hh Mm" from one
// hour upwards.
func FormatDuration(d time.Duration) string {
	minutes := int64(d / time.Minute)
	if minutes < 60 {
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
