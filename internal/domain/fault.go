package domain

import "time"

// Severity represents the contractual severity of a fault.
type Severity string

// Severity levels.
const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityQuery    Severity = "query"
)

// Severities lists every known severity in descending order of urgency.
var Severities = []Severity{SeverityCritical, SeverityMajor, SeverityMinor, SeverityQuery}

// IsValid checks if the severity is one of the known levels.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityMajor, SeverityMinor, SeverityQuery:
		return true
	}
	return false
}

// FaultStatus represents the lifecycle status of a fault.
type FaultStatus string

// Fault statuses.
const (
	FaultStatusOpen       FaultStatus = "open"
	FaultStatusInProgress FaultStatus = "in_progress"
	FaultStatusResolved   FaultStatus = "resolved"
)

// IsResolved checks if the status is terminal.
func (s FaultStatus) IsResolved() bool {
	return s == FaultStatusResolved
}

// Fault represents a logged fault at a client site.
type Fault struct {
	ID          string      `json:"id"`
	Reference   string      `json:"reference"`
	Description string      `json:"description"`
	Severity    Severity    `json:"severity"`
	Status      FaultStatus `json:"status"`
	// RaisedAt is when the client raised the fault. When nil the
	// creation time is used.
	RaisedAt              *time.Time `json:"raised_at"`
	RespondedAt           *time.Time `json:"responded_at"`
	ArrivedOnsiteAt       *time.Time `json:"arrived_onsite_at"`
	TemporarilyRestoredAt *time.Time `json:"temporarily_restored_at"`
	ResolvedAt            *time.Time `json:"resolved_at"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// StartTime returns the moment SLA clocks start for the fault.
// Returns the zero time when neither RaisedAt nor CreatedAt is known.
func (f *Fault) StartTime() time.Time {
	if f.RaisedAt != nil {
		return *f.RaisedAt
	}
	return f.CreatedAt
}

// MilestoneActual returns the recorded completion time for a milestone.
func (f *Fault) MilestoneActual(m Milestone) *time.Time {
	switch m {
	case MilestoneRespond:
		return f.RespondedAt
	case MilestoneOnsite:
		return f.ArrivedOnsiteAt
	case MilestoneTempRestore:
		return f.TemporarilyRestoredAt
	}
	return nil
}

// UpdateType is the channel a fault communication update was sent through.
type UpdateType string

// Update types.
const (
	UpdateTypePhoneCall UpdateType = "phone_call"
	UpdateTypeEmail     UpdateType = "email"
	UpdateTypeAppUpdate UpdateType = "app_update"
)

// IsValid checks if the update type is valid.
func (t UpdateType) IsValid() bool {
	return t == UpdateTypePhoneCall || t == UpdateTypeEmail || t == UpdateTypeAppUpdate
}

// FaultUpdate is an entry in a fault's client communication log.
type FaultUpdate struct {
	ID         string     `json:"id"`
	FaultID    string     `json:"fault_id"`
	UpdateType UpdateType `json:"update_type"`
	Message    string     `json:"message"`
	SentBy     string     `json:"sent_by"`
	// IsOverdue records whether the update was already late when logged.
	IsOverdue bool      `json:"is_overdue"`
	CreatedAt time.Time `json:"created_at"`
}
