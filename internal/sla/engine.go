// Package sla computes contractual SLA milestone deadlines for faults,
// classifies milestones against a caller-supplied instant and aggregates
// penalty exposure.
//
// Everything in this package is pure computation over immutable
// configuration. The current time is always passed in by the caller so
// that a batch evaluates every fault against one instant.
package sla

import (
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/fieldservice-sla/internal/domain"
	"github.com/shopspring/decimal"
)

// Errors.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidConfig = errors.New("invalid sla configuration")
)

// DefaultAtRiskWindow is how close to a deadline an open milestone is
// reported as at risk.
const DefaultAtRiskWindow = 30 * time.Minute

// Config contains engine configuration.
type Config struct {
	Location         *time.Location
	BusinessDayStart ClockTime
	BusinessDayEnd   ClockTime
	AtRiskWindow     time.Duration
	Rules            map[domain.Severity]SeverityRule
	Penalties        PenaltyPolicy
	// UpdateIntervals is the maximum gap between client communication
	// updates per severity. Severities without an entry use
	// DefaultUpdateInterval.
	UpdateIntervals       map[domain.Severity]time.Duration
	DefaultUpdateInterval time.Duration
}

// DefaultConfig returns the contractual configuration.
func DefaultConfig() Config {
	return Config{
		Location:         OperatingZone,
		BusinessDayStart: ClockTime{Hour: 8},
		BusinessDayEnd:   ClockTime{Hour: 16, Minute: 30},
		AtRiskWindow:     DefaultAtRiskWindow,
		Rules:            DefaultRules(),
		Penalties:        DefaultPenaltyPolicy(),
		UpdateIntervals: map[domain.Severity]time.Duration{
			domain.SeverityCritical: time.Hour,
			domain.SeverityMajor:    2 * time.Hour,
			domain.SeverityMinor:    24 * time.Hour,
			domain.SeverityQuery:    24 * time.Hour,
		},
		DefaultUpdateInterval: 24 * time.Hour,
	}
}

// Engine evaluates SLA deadlines, milestone status and penalties.
// An Engine is immutable and safe for concurrent use.
type Engine struct {
	calendar              Calendar
	rules                 RuleSet
	penalties             PenaltyPolicy
	atRiskWindow          time.Duration
	updateIntervals       map[domain.Severity]time.Duration
	defaultUpdateInterval time.Duration
	clock                 func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used when a fault has no raise time.
// Without it such faults are rejected with ErrInvalidInput.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// New validates cfg and creates an engine holding a private copy of it.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.BusinessDayStart.sinceMidnight() >= cfg.BusinessDayEnd.sinceMidnight() {
		return nil, fmt.Errorf("%w: business day start %s must be before end %s",
			ErrInvalidConfig, cfg.BusinessDayStart, cfg.BusinessDayEnd)
	}
	if cfg.AtRiskWindow <= 0 {
		return nil, fmt.Errorf("%w: at-risk window must be positive", ErrInvalidConfig)
	}

	rules, err := NewRuleSet(cfg.Rules)
	if err != nil {
		return nil, err
	}

	penalties, err := cfg.Penalties.normalize()
	if err != nil {
		return nil, err
	}

	intervals := make(map[domain.Severity]time.Duration, len(cfg.UpdateIntervals))
	for sev, d := range cfg.UpdateIntervals {
		if d <= 0 {
			return nil, fmt.Errorf("%w: update interval for %q must be positive", ErrInvalidConfig, sev)
		}
		intervals[sev] = d
	}
	defaultInterval := cfg.DefaultUpdateInterval
	if defaultInterval <= 0 {
		defaultInterval = 24 * time.Hour
	}

	e := &Engine{
		calendar:              NewCalendar(cfg.Location, cfg.BusinessDayStart, cfg.BusinessDayEnd),
		rules:                 rules,
		penalties:             penalties,
		atRiskWindow:          cfg.AtRiskWindow,
		updateIntervals:       intervals,
		defaultUpdateInterval: defaultInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// MustNew is like New but panics on invalid configuration.
func MustNew(cfg Config, opts ...Option) *Engine {
	e, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Calendar returns the engine's business calendar.
func (e *Engine) Calendar() Calendar {
	return e.calendar
}

// QuarterlyFee returns the contract's quarterly fee.
func (e *Engine) QuarterlyFee() decimal.Decimal {
	return e.penalties.QuarterlyFee
}
