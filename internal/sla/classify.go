package sla

import (
	"time"

	"github.com/bissquit/fieldservice-sla/internal/domain"
)

// MilestoneStatus is the classification of one milestone at an instant.
// DelayMinutes is set when an actual time is known; SecondsRemaining is
// set while the milestone is still open.
type MilestoneStatus struct {
	Status           domain.MilestoneState `json:"status"`
	Deadline         *time.Time            `json:"deadline"`
	Actual           *time.Time            `json:"actual"`
	DelayMinutes     *int64                `json:"delay_minutes,omitempty"`
	SecondsRemaining *int64                `json:"seconds_remaining,omitempty"`
}

// ClassifyMilestone classifies a milestone using DefaultAtRiskWindow.
func ClassifyMilestone(deadline, actual *time.Time, now time.Time) MilestoneStatus {
	return classify(deadline, actual, now, DefaultAtRiskWindow)
}

// ClassifyMilestone classifies a milestone using the engine's at-risk window.
func (e *Engine) ClassifyMilestone(deadline, actual *time.Time, now time.Time) MilestoneStatus {
	return classify(deadline, actual, now, e.atRiskWindow)
}

func classify(deadline, actual *time.Time, now time.Time, window time.Duration) MilestoneStatus {
	if deadline == nil {
		return MilestoneStatus{Status: domain.MilestoneNotApplicable}
	}

	if actual != nil {
		status := domain.MilestoneMet
		if actual.After(*deadline) {
			status = domain.MilestoneBreached
		}
		delay := int64(actual.Sub(*deadline) / time.Minute)
		return MilestoneStatus{
			Status:       status,
			Deadline:     deadline,
			Actual:       actual,
			DelayMinutes: ptr(max(0, delay)),
		}
	}

	remaining := deadline.Sub(now)

	var status domain.MilestoneState
	switch {
	case remaining <= 0:
		status = domain.MilestoneBreached
	case remaining <= window:
		status = domain.MilestoneAtRisk
	default:
		status = domain.MilestonePending
	}

	return MilestoneStatus{
		Status:           status,
		Deadline:         deadline,
		SecondsRemaining: ptr(max(0, int64(remaining/time.Second))),
	}
}

// IncidentStatusSummary is the SLA picture of one fault.
type IncidentStatusSummary struct {
	FaultID     string              `json:"fault_id"`
	Severity    domain.Severity     `json:"severity"`
	Overall     domain.OverallState `json:"overall"`
	Respond     MilestoneStatus     `json:"respond"`
	Onsite      MilestoneStatus     `json:"onsite"`
	TempRestore MilestoneStatus     `json:"temp_restore"`
	EvaluatedAt time.Time           `json:"evaluated_at"`
}

// IncidentSLAStatus classifies every milestone of a fault at now.
// Milestones are evaluated independently of each other.
func (e *Engine) IncidentSLAStatus(fault *domain.Fault, now time.Time) (IncidentStatusSummary, error) {
	deadlines, err := e.FaultDeadlines(fault)
	if err != nil {
		return IncidentStatusSummary{}, err
	}

	summary := IncidentStatusSummary{
		FaultID:     fault.ID,
		Severity:    fault.Severity,
		Respond:     e.ClassifyMilestone(deadlines.Respond, fault.RespondedAt, now),
		Onsite:      e.ClassifyMilestone(deadlines.Onsite, fault.ArrivedOnsiteAt, now),
		TempRestore: e.ClassifyMilestone(deadlines.TempRestore, fault.TemporarilyRestoredAt, now),
		EvaluatedAt: now,
	}
	summary.Overall = overallState(fault.Status, summary.Respond, summary.Onsite, summary.TempRestore)

	return summary, nil
}

// overallState applies the precedence resolved > breached > at_risk > ok.
func overallState(status domain.FaultStatus, milestones ...MilestoneStatus) domain.OverallState {
	if status.IsResolved() {
		return domain.OverallResolved
	}
	for _, m := range milestones {
		if m.Status == domain.MilestoneBreached {
			return domain.OverallBreached
		}
	}
	for _, m := range milestones {
		if m.Status == domain.MilestoneAtRisk {
			return domain.OverallAtRisk
		}
	}
	return domain.OverallOK
}
