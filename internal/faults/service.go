package faults

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/fieldservice-sla/internal/domain"
	"github.com/bissquit/fieldservice-sla/internal/pkg/ctxlog"
	"github.com/bissquit/fieldservice-sla/internal/pkg/metrics"
	"github.com/bissquit/fieldservice-sla/internal/sla"
)

// Service implements fault business logic on top of the SLA engine.
type Service struct {
	repo   Repository
	engine *sla.Engine
	now    func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock replaces time.Now as the source of "now".
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new fault service.
func NewService(repo Repository, engine *sla.Engine, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		engine: engine,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the SLA engine used by the service.
func (s *Service) Engine() *sla.Engine {
	return s.engine
}

// CreateFaultInput holds data for logging a fault.
type CreateFaultInput struct {
	Reference   string
	Description string
	Severity    domain.Severity
	// RaisedAt defaults to the current time.
	RaisedAt *time.Time
}

// FaultWithDeadlines is a fault together with its milestone deadlines.
type FaultWithDeadlines struct {
	*domain.Fault
	Deadlines sla.DeadlineSet `json:"deadlines"`
}

// CreateFault validates and stores a new open fault.
func (s *Service) CreateFault(ctx context.Context, input CreateFaultInput) (*FaultWithDeadlines, error) {
	if !input.Severity.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSeverity, input.Severity)
	}

	raisedAt := s.timestamp(input.RaisedAt)

	fault := &domain.Fault{
		Reference:   input.Reference,
		Description: input.Description,
		Severity:    input.Severity,
		Status:      domain.FaultStatusOpen,
		RaisedAt:    &raisedAt,
	}

	if err := s.repo.CreateFault(ctx, fault); err != nil {
		return nil, fmt.Errorf("create fault: %w", err)
	}

	ctxlog.FromContext(ctx).Info("fault logged",
		"fault_id", fault.ID,
		"severity", fault.Severity,
		"raised_at", raisedAt,
	)

	return s.withDeadlines(fault)
}

// GetFault returns a fault and its deadlines.
func (s *Service) GetFault(ctx context.Context, id string) (*FaultWithDeadlines, error) {
	fault, err := s.repo.GetFault(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withDeadlines(fault)
}

// ListActiveFaults returns every unresolved fault with its deadlines.
func (s *Service) ListActiveFaults(ctx context.Context) ([]*FaultWithDeadlines, error) {
	faults, err := s.repo.ListActiveFaults(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active faults: %w", err)
	}

	result := make([]*FaultWithDeadlines, 0, len(faults))
	for _, f := range faults {
		fd, err := s.withDeadlines(f)
		if err != nil {
			return nil, fmt.Errorf("fault %s: %w", f.ID, err)
		}
		result = append(result, fd)
	}
	return result, nil
}

func (s *Service) withDeadlines(fault *domain.Fault) (*FaultWithDeadlines, error) {
	deadlines, err := s.engine.FaultDeadlines(fault)
	if err != nil {
		return nil, fmt.Errorf("calculate deadlines: %w", err)
	}
	return &FaultWithDeadlines{Fault: fault, Deadlines: deadlines}, nil
}

// timestamp returns at, or now when at is nil, in the operating zone and
// at the microsecond precision PostgreSQL stores.
func (s *Service) timestamp(at *time.Time) time.Time {
	t := s.now()
	if at != nil {
		t = *at
	}
	return s.engine.Calendar().Local(t.Truncate(time.Microsecond))
}

// RecordMilestone stores the actual time of a milestone, defaulting to
// now. The first recorded time wins: recording the same time again is a
// no-op, a different time fails with ErrMilestoneAlreadyRecorded.
func (s *Service) RecordMilestone(ctx context.Context, id string, m domain.Milestone, at *time.Time) (*FaultWithDeadlines, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMilestone, m)
	}

	fault, err := s.repo.GetFault(ctx, id)
	if err != nil {
		return nil, err
	}
	if fault.Status.IsResolved() {
		return nil, ErrFaultResolved
	}

	when := s.timestamp(at)
	if when.Before(fault.StartTime()) {
		return nil, ErrTimeBeforeRaise
	}

	stored, err := s.repo.SetMilestone(ctx, id, m, when)
	if err != nil {
		return nil, fmt.Errorf("set milestone: %w", err)
	}

	actual := stored.MilestoneActual(m)
	if actual == nil {
		return nil, fmt.Errorf("set milestone: %s not stored", m)
	}
	if !actual.Equal(when) {
		return nil, fmt.Errorf("%w: %s recorded at %s", ErrMilestoneAlreadyRecorded, m, actual.Format(time.RFC3339))
	}

	ctxlog.FromContext(ctx).Info("milestone recorded",
		"fault_id", id,
		"milestone", m,
		"at", when,
	)

	return s.withDeadlines(stored)
}

// ResolveFault closes a fault. Milestones without an actual time stay
// open and are no longer evaluated.
func (s *Service) ResolveFault(ctx context.Context, id string, at *time.Time) (*FaultWithDeadlines, error) {
	fault, err := s.repo.GetFault(ctx, id)
	if err != nil {
		return nil, err
	}
	if fault.Status.IsResolved() {
		return nil, ErrFaultResolved
	}

	when := s.timestamp(at)
	if when.Before(fault.StartTime()) {
		return nil, ErrTimeBeforeRaise
	}

	resolved, err := s.repo.ResolveFault(ctx, id, when)
	if err != nil {
		return nil, fmt.Errorf("resolve fault: %w", err)
	}

	ctxlog.FromContext(ctx).Info("fault resolved", "fault_id", id, "at", when)

	return s.withDeadlines(resolved)
}

// SLAStatus classifies every milestone of a fault at the current time.
func (s *Service) SLAStatus(ctx context.Context, id string) (sla.IncidentStatusSummary, error) {
	fault, err := s.repo.GetFault(ctx, id)
	if err != nil {
		return sla.IncidentStatusSummary{}, err
	}
	return s.engine.IncidentSLAStatus(fault, s.now())
}

// PenaltyExposure returns the penalty exposure of a fault at the current
// time.
func (s *Service) PenaltyExposure(ctx context.Context, id string) (sla.PenaltyExposure, error) {
	fault, err := s.repo.GetFault(ctx, id)
	if err != nil {
		return sla.PenaltyExposure{}, err
	}
	return s.engine.IncidentPenaltyExposure(fault, s.now())
}

// PenaltySummary is the penalty summary of one calendar quarter.
type PenaltySummary struct {
	QuarterStart time.Time `json:"quarter_start"`
	QuarterEnd   time.Time `json:"quarter_end"`
	sla.QuarterlySummary
}

// QuarterPenaltySummary aggregates penalty exposure over the faults raised
// in the quarter containing at, evaluated at the current time.
func (s *Service) QuarterPenaltySummary(ctx context.Context, at time.Time) (*PenaltySummary, error) {
	start, end := s.engine.Calendar().QuarterBounds(at)

	faults, err := s.repo.ListFaultsRaisedBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list faults in quarter: %w", err)
	}

	summary, err := s.engine.QuarterlyPenaltySummary(faults, s.now())
	if err != nil {
		return nil, fmt.Errorf("summarise penalties: %w", err)
	}

	return &PenaltySummary{
		QuarterStart:     start,
		QuarterEnd:       end,
		QuarterlySummary: summary,
	}, nil
}

// Now returns the service's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// CreateUpdateInput holds data for logging a client communication update.
type CreateUpdateInput struct {
	FaultID    string
	UpdateType domain.UpdateType
	Message    string
	SentBy     string
}

// LogUpdate records a communication update, flagging it as overdue when
// the previous one (or the raise) is older than the severity's interval.
func (s *Service) LogUpdate(ctx context.Context, input CreateUpdateInput) (*domain.FaultUpdate, error) {
	if !input.UpdateType.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidUpdateType, input.UpdateType)
	}

	fault, err := s.repo.GetFault(ctx, input.FaultID)
	if err != nil {
		return nil, err
	}

	last, err := s.repo.LatestFaultUpdateAt(ctx, fault.ID)
	if err != nil {
		return nil, fmt.Errorf("get latest update: %w", err)
	}

	now := s.now()
	due := s.engine.UpdateDueStatus(fault, last, now)

	update := &domain.FaultUpdate{
		FaultID:    fault.ID,
		UpdateType: input.UpdateType,
		Message:    input.Message,
		SentBy:     input.SentBy,
		IsOverdue:  due.IsOverdue,
		CreatedAt:  now,
	}
	if err := s.repo.CreateFaultUpdate(ctx, update); err != nil {
		return nil, fmt.Errorf("create fault update: %w", err)
	}

	if update.IsOverdue {
		ctxlog.FromContext(ctx).Warn("fault update logged late",
			"fault_id", fault.ID,
			"severity", fault.Severity,
			"interval_minutes", due.IntervalMinutes,
		)
	}

	return update, nil
}

// ListUpdates returns the communication log of a fault, newest first.
func (s *Service) ListUpdates(ctx context.Context, faultID string) ([]*domain.FaultUpdate, error) {
	if _, err := s.repo.GetFault(ctx, faultID); err != nil {
		return nil, err
	}
	updates, err := s.repo.ListFaultUpdates(ctx, faultID)
	if err != nil {
		return nil, fmt.Errorf("list fault updates: %w", err)
	}
	return updates, nil
}

// UpdateDueStatus reports whether the next communication update of a
// fault is overdue.
func (s *Service) UpdateDueStatus(ctx context.Context, faultID string) (sla.UpdateDueStatus, error) {
	fault, err := s.repo.GetFault(ctx, faultID)
	if err != nil {
		return sla.UpdateDueStatus{}, err
	}
	last, err := s.repo.LatestFaultUpdateAt(ctx, faultID)
	if err != nil {
		return sla.UpdateDueStatus{}, fmt.Errorf("get latest update: %w", err)
	}
	return s.engine.UpdateDueStatus(fault, last, s.now()), nil
}

// CheckResult is the outcome of one SLA check over the active faults.
type CheckResult struct {
	EvaluatedAt  time.Time   `json:"evaluated_at"`
	ActiveFaults int         `json:"active_faults"`
	Warnings     []sla.Event `json:"warnings"`
	Breaches     []sla.Event `json:"breaches"`
}

// CheckSLA evaluates every active fault against a single instant.
// Faults whose deadlines cannot be computed are logged and skipped.
func (s *Service) CheckSLA(ctx context.Context) (*CheckResult, error) {
	start := time.Now()
	defer func() {
		metrics.SLAScanDuration.Observe(time.Since(start).Seconds())
	}()

	faults, err := s.repo.ListActiveFaults(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active faults: %w", err)
	}

	now := s.now()
	warnings, breaches, scanErr := s.engine.ScanForDueEvents(faults, now)
	if scanErr != nil {
		ctxlog.FromContext(ctx).Error("some faults could not be evaluated", "error", scanErr)
	}

	metrics.SLAActiveFaults.Set(float64(len(faults)))
	for _, ev := range warnings {
		metrics.SLAEvents.WithLabelValues(string(ev.Kind), string(ev.Milestone)).Inc()
	}
	for _, ev := range breaches {
		metrics.SLAEvents.WithLabelValues(string(ev.Kind), string(ev.Milestone)).Inc()
	}

	if warnings == nil {
		warnings = []sla.Event{}
	}
	if breaches == nil {
		breaches = []sla.Event{}
	}

	return &CheckResult{
		EvaluatedAt:  now,
		ActiveFaults: len(faults),
		Warnings:     warnings,
		Breaches:     breaches,
	}, nil
}
