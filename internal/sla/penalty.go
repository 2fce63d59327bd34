package sla

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bissquit/fieldservice-sla/internal/domain"
	"github.com/shopspring/decimal"
)

// PenaltyStep applies Percent once a milestone is at least FromHours late.
type PenaltyStep struct {
	FromHours float64
	Percent   float64
}

// PenaltyTable is a stepped delay-to-percentage table.
type PenaltyTable []PenaltyStep

// DefaultPenaltyTable returns the contractual penalty steps.
func DefaultPenaltyTable() PenaltyTable {
	return PenaltyTable{
		{FromHours: 4, Percent: 10},
		{FromHours: 8, Percent: 15},
		{FromHours: 16, Percent: 20},
		{FromHours: 24, Percent: 30},
	}
}

// Percentage returns the percent of the highest step reached by
// delayHours, or 0 below the first step. The table must be sorted.
func (t PenaltyTable) Percentage(delayHours float64) float64 {
	pct := 0.0
	for _, step := range t {
		if delayHours < step.FromHours {
			break
		}
		pct = step.Percent
	}
	return pct
}

var defaultPenaltyTable = DefaultPenaltyTable()

// PenaltyPercentage looks delayHours up in the default penalty table.
func PenaltyPercentage(delayHours float64) float64 {
	return defaultPenaltyTable.Percentage(delayHours)
}

// PenaltyPolicy holds the contract's financial terms.
type PenaltyPolicy struct {
	Table        PenaltyTable
	QuarterlyFee decimal.Decimal
	// PerFaultCapPct caps each milestone's percentage and again the
	// summed percentage of a fault.
	PerFaultCapPct float64
	// AggregateCapPct caps the quarter's total as a share of the fee.
	AggregateCapPct float64
	// TerminationThreshold is the number of penalised faults in a
	// quarter at which the client may terminate.
	TerminationThreshold int
}

// MonthlyFee is the contract's monthly fee in rand.
var MonthlyFee = decimal.NewFromInt(900_000)

// DefaultPenaltyPolicy returns the contractual penalty terms.
func DefaultPenaltyPolicy() PenaltyPolicy {
	return PenaltyPolicy{
		Table:                DefaultPenaltyTable(),
		QuarterlyFee:         MonthlyFee.Mul(decimal.NewFromInt(3)),
		PerFaultCapPct:       10,
		AggregateCapPct:      20,
		TerminationThreshold: 3,
	}
}

func (p PenaltyPolicy) normalize() (PenaltyPolicy, error) {
	if p.QuarterlyFee.IsNegative() {
		return p, fmt.Errorf("%w: quarterly fee must not be negative", ErrInvalidConfig)
	}
	if p.PerFaultCapPct < 0 || p.AggregateCapPct < 0 {
		return p, fmt.Errorf("%w: penalty caps must not be negative", ErrInvalidConfig)
	}
	if p.TerminationThreshold <= 0 {
		return p, fmt.Errorf("%w: termination threshold must be positive", ErrInvalidConfig)
	}

	table := make(PenaltyTable, len(p.Table))
	copy(table, p.Table)
	sort.SliceStable(table, func(i, j int) bool { return table[i].FromHours < table[j].FromHours })
	p.Table = table

	return p, nil
}

func (p PenaltyPolicy) amount(pct float64) decimal.Decimal {
	return p.QuarterlyFee.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100)).Round(2)
}

// penalisedMilestones are the milestones the contract attaches money to.
var penalisedMilestones = []domain.Milestone{domain.MilestoneOnsite, domain.MilestoneTempRestore}

// MilestonePenalty is the penalty assessment of one milestone.
type MilestonePenalty struct {
	Milestone  domain.Milestone      `json:"milestone"`
	Status     domain.MilestoneState `json:"status"`
	Deadline   time.Time             `json:"deadline"`
	ActualTime *time.Time            `json:"actual_time"`
	DelayHours float64               `json:"delay_hours"`
	PenaltyPct float64               `json:"penalty_pct"`
	Amount     decimal.Decimal       `json:"penalty_rand"`
}

// PenaltyExposure is the penalty exposure of one fault.
type PenaltyExposure struct {
	FaultID         string             `json:"fault_id"`
	Severity        domain.Severity    `json:"severity"`
	Milestones      []MilestonePenalty `json:"milestones"`
	TotalPenaltyPct float64            `json:"total_penalty_pct"`
	TotalAmount     decimal.Decimal    `json:"total_penalty_rand"`
}

// IncidentPenaltyExposure assesses the on-site and temp-restore milestones
// of a fault. An open milestone is measured against now while the fault
// is unresolved; a resolved fault with no actual time is not assessed.
//
// The per-fault cap is applied to each milestone and then to the fault's
// summed percentage, both with the same threshold.
func (e *Engine) IncidentPenaltyExposure(fault *domain.Fault, now time.Time) (PenaltyExposure, error) {
	if fault == nil {
		return PenaltyExposure{}, fmt.Errorf("%w: fault is required", ErrInvalidInput)
	}

	deadlines, err := e.FaultDeadlines(fault)
	if err != nil {
		return PenaltyExposure{}, err
	}

	exposure := PenaltyExposure{
		FaultID:     fault.ID,
		Severity:    fault.Severity,
		Milestones:  make([]MilestonePenalty, 0, len(penalisedMilestones)),
		TotalAmount: decimal.Zero,
	}

	capPct := e.penalties.PerFaultCapPct
	totalPct := 0.0

	for _, m := range penalisedMilestones {
		deadline := deadlines.For(m)
		if deadline == nil {
			continue
		}

		actual := fault.MilestoneActual(m)
		measured := actual
		if measured == nil {
			if fault.Status.IsResolved() {
				continue
			}
			measured = &now
		}

		delay := measured.Sub(*deadline)
		if delay <= 0 {
			status := domain.MilestoneMet
			if actual == nil {
				status = domain.MilestonePending
			}
			exposure.Milestones = append(exposure.Milestones, MilestonePenalty{
				Milestone:  m,
				Status:     status,
				Deadline:   *deadline,
				ActualTime: actual,
				Amount:     decimal.Zero,
			})
			continue
		}

		delayHours := delay.Hours()
		pct := math.Min(e.penalties.Table.Percentage(delayHours), capPct)
		totalPct += pct

		at := *measured
		exposure.Milestones = append(exposure.Milestones, MilestonePenalty{
			Milestone:  m,
			Status:     domain.MilestoneBreached,
			Deadline:   *deadline,
			ActualTime: &at,
			DelayHours: round2(delayHours),
			PenaltyPct: pct,
			Amount:     e.penalties.amount(pct),
		})
	}

	capped := math.Min(totalPct, capPct)
	exposure.TotalPenaltyPct = round2(capped)
	exposure.TotalAmount = e.penalties.amount(capped)

	return exposure, nil
}

// QuarterlySummary aggregates penalty exposure over a quarter.
type QuarterlySummary struct {
	QuarterlyFee       decimal.Decimal   `json:"quarterly_fee_rand"`
	TotalAmount        decimal.Decimal   `json:"total_penalty_rand"`
	TotalPenaltyPct    float64           `json:"total_penalty_pct"`
	BreachedFaultCount int               `json:"breached_fault_count"`
	TerminationRisk    bool              `json:"termination_risk"`
	Incidents          []PenaltyExposure `json:"incidents"`
}

// QuarterlyPenaltySummary sums the capped exposure of every fault, caps the
// total at the aggregate ceiling and flags termination risk once the
// number of penalised faults reaches the threshold.
func (e *Engine) QuarterlyPenaltySummary(faults []*domain.Fault, now time.Time) (QuarterlySummary, error) {
	summary := QuarterlySummary{
		QuarterlyFee: e.penalties.QuarterlyFee,
		TotalAmount:  decimal.Zero,
		Incidents:    make([]PenaltyExposure, 0, len(faults)),
	}

	total := decimal.Zero
	for _, fault := range faults {
		if fault == nil {
			continue
		}
		exposure, err := e.IncidentPenaltyExposure(fault, now)
		if err != nil {
			return QuarterlySummary{}, fmt.Errorf("fault %s: %w", fault.ID, err)
		}
		total = total.Add(exposure.TotalAmount)
		if exposure.TotalPenaltyPct > 0 {
			summary.BreachedFaultCount++
		}
		summary.Incidents = append(summary.Incidents, exposure)
	}

	ceiling := e.penalties.amount(e.penalties.AggregateCapPct)
	summary.TotalAmount = decimal.Min(total, ceiling).Round(2)
	if e.penalties.QuarterlyFee.IsPositive() {
		pct, _ := summary.TotalAmount.Div(e.penalties.QuarterlyFee).Mul(decimal.NewFromInt(100)).Float64()
		summary.TotalPenaltyPct = round2(pct)
	}
	summary.TerminationRisk = summary.BreachedFaultCount >= e.penalties.TerminationThreshold

	return summary, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
