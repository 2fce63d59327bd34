package sla

import (
	"fmt"
	"time"

	"github.com/bissquit/fieldservice-sla/internal/domain"
)

// DeadlineSet holds the three milestone deadlines of a fault. A nil
// deadline means the milestone does not apply to the severity.
// For query faults TempRestore carries the resolution deadline.
type DeadlineSet struct {
	Respond     *time.Time `json:"respond_deadline"`
	Onsite      *time.Time `json:"onsite_deadline"`
	TempRestore *time.Time `json:"temp_restore_deadline"`
}

// For returns the deadline of a milestone.
func (d DeadlineSet) For(m domain.Milestone) *time.Time {
	switch m {
	case domain.MilestoneRespond:
		return d.Respond
	case domain.MilestoneOnsite:
		return d.Onsite
	case domain.MilestoneTempRestore:
		return d.TempRestore
	}
	return nil
}

// CalculateDeadlines computes the milestone deadlines for a fault raised
// at raisedAt. A zero raisedAt falls back to the engine clock.
func (e *Engine) CalculateDeadlines(sev domain.Severity, raisedAt time.Time) (DeadlineSet, error) {
	if raisedAt.IsZero() {
		if e.clock == nil {
			return DeadlineSet{}, fmt.Errorf("%w: raised_at is required", ErrInvalidInput)
		}
		raisedAt = e.clock()
	}
	ra := e.calendar.Local(raisedAt)
	rule := e.rules.For(sev)

	var set DeadlineSet

	if rule.RespondMinutes > 0 {
		set.Respond = ptr(addMinutes(ra, rule.RespondMinutes))
	}

	switch {
	case rule.OnsiteMinutes > 0:
		set.Onsite = ptr(addMinutes(ra, rule.OnsiteMinutes))
	case rule.OnsiteBusinessDays > 0:
		set.Onsite = ptr(e.calendar.NextBusinessDayStart(ra))
	}

	switch {
	case rule.TempRestoreMinutes > 0:
		set.TempRestore = ptr(addMinutes(ra, rule.TempRestoreMinutes))
	case rule.TempRestoreBusinessDays > 0:
		set.TempRestore = ptr(e.calendar.AddBusinessDays(ra, rule.TempRestoreBusinessDays))
	case rule.ResolutionBusinessDays > 0:
		set.TempRestore = ptr(e.calendar.AddBusinessDays(ra, rule.ResolutionBusinessDays))
	}

	return set, nil
}

// FaultDeadlines computes deadlines from a fault's severity and start time.
func (e *Engine) FaultDeadlines(fault *domain.Fault) (DeadlineSet, error) {
	return e.CalculateDeadlines(fault.Severity, fault.StartTime())
}

func addMinutes(t time.Time, minutes int) time.Time {
	return t.Add(time.Duration(minutes) * time.Minute)
}

func ptr[T any](v T) *T {
	return &v
}
