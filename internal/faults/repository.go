// Package faults provides fault tracking, SLA evaluation and the HTTP API
// over them.
package faults

import (
	"context"
	"errors"
	"time"

	"github.com/bissquit/fieldservice-sla/internal/domain"
)

// Repository defines the interface for fault storage.
type Repository interface {
	CreateFault(ctx context.Context, fault *domain.Fault) error
	GetFault(ctx context.Context, id string) (*domain.Fault, error)
	// ListActiveFaults returns every fault that is not resolved.
	ListActiveFaults(ctx context.Context) ([]*domain.Fault, error)
	// ListFaultsRaisedBetween returns faults whose start time lies in
	// [start, end).
	ListFaultsRaisedBetween(ctx context.Context, start, end time.Time) ([]*domain.Fault, error)
	// SetMilestone stores the actual time of a milestone unless one is
	// already stored, and returns the fault as stored afterwards.
	SetMilestone(ctx context.Context, id string, milestone domain.Milestone, at time.Time) (*domain.Fault, error)
	ResolveFault(ctx context.Context, id string, at time.Time) (*domain.Fault, error)

	CreateFaultUpdate(ctx context.Context, update *domain.FaultUpdate) error
	// LatestFaultUpdateAt returns nil when the fault has no updates.
	LatestFaultUpdateAt(ctx context.Context, faultID string) (*time.Time, error)
	ListFaultUpdates(ctx context.Context, faultID string) ([]*domain.FaultUpdate, error)
}

// Errors.
var (
	ErrFaultNotFound            = errors.New("fault not found")
	ErrFaultResolved            = errors.New("fault is already resolved")
	ErrInvalidSeverity          = errors.New("invalid severity")
	ErrInvalidMilestone         = errors.New("invalid milestone")
	ErrInvalidUpdateType        = errors.New("invalid update type")
	ErrMilestoneAlreadyRecorded = errors.New("milestone already recorded with a different time")
	ErrTimeBeforeRaise          = errors.New("timestamp is before the fault was raised")
)
