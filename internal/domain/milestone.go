package domain

// Milestone is a contractual checkpoint with its own deadline.
type Milestone string

// SLA milestones.
const (
	MilestoneRespond     Milestone = "respond"
	MilestoneOnsite      Milestone = "onsite"
	MilestoneTempRestore Milestone = "temp_restore"
)

// Milestones lists the milestones in the order they are expected to occur.
var Milestones = []Milestone{MilestoneRespond, MilestoneOnsite, MilestoneTempRestore}

// IsValid checks if the milestone is known.
func (m Milestone) IsValid() bool {
	return m == MilestoneRespond || m == MilestoneOnsite || m == MilestoneTempRestore
}

// MilestoneState is the classification of a single milestone.
type MilestoneState string

// Milestone states.
const (
	MilestoneNotApplicable MilestoneState = "not_applicable"
	MilestonePending       MilestoneState = "pending"
	MilestoneMet           MilestoneState = "met"
	MilestoneAtRisk        MilestoneState = "at_risk"
	MilestoneBreached      MilestoneState = "breached"
)

// OverallState is the roll-up of all milestones of a fault.
type OverallState string

// Overall states, from highest to lowest precedence.
const (
	OverallResolved OverallState = "resolved"
	OverallBreached OverallState = "breached"
	OverallAtRisk   OverallState = "at_risk"
	OverallOK       OverallState = "ok"
)
