package sla

import (
	"fmt"

	"github.com/bissquit/fieldservice-sla/internal/domain"
)

// SeverityRule holds the contract parameters for one severity.
// A zero value means the parameter does not apply. For each milestone at
// most one of the minute-based and business-day-based fields governs.
type SeverityRule struct {
	RespondMinutes int

	OnsiteMinutes int
	// OnsiteBusinessDays selects "next business day start"; the count
	// itself is not used beyond marking the rule as business-day based.
	OnsiteBusinessDays int

	TempRestoreMinutes      int
	TempRestoreBusinessDays int
	// ResolutionBusinessDays is used for query-type faults, which have a
	// single resolution deadline reported in the temp-restore slot.
	ResolutionBusinessDays int
}

func (r SeverityRule) validate() error {
	if r.OnsiteMinutes > 0 && r.OnsiteBusinessDays > 0 {
		return fmt.Errorf("onsite minutes and business days are mutually exclusive")
	}
	set := 0
	for _, v := range []int{r.TempRestoreMinutes, r.TempRestoreBusinessDays, r.ResolutionBusinessDays} {
		if v > 0 {
			set++
		}
		if v < 0 {
			return fmt.Errorf("negative temp restore parameter")
		}
	}
	if set > 1 {
		return fmt.Errorf("temp restore minutes, business days and resolution days are mutually exclusive")
	}
	if r.RespondMinutes < 0 || r.OnsiteMinutes < 0 || r.OnsiteBusinessDays < 0 {
		return fmt.Errorf("negative rule parameter")
	}
	return nil
}

// DefaultRules returns the contractual rule table.
func DefaultRules() map[domain.Severity]SeverityRule {
	return map[domain.Severity]SeverityRule{
		domain.SeverityCritical: {
			RespondMinutes:     1, // "immediate"
			OnsiteMinutes:      120,
			TempRestoreMinutes: 240,
		},
		domain.SeverityMajor: {
			RespondMinutes:     30,
			OnsiteMinutes:      240,
			TempRestoreMinutes: 480,
		},
		domain.SeverityMinor: {
			OnsiteBusinessDays:      1,
			TempRestoreBusinessDays: 2,
		},
		domain.SeverityQuery: {
			ResolutionBusinessDays: 20,
		},
	}
}

// RuleSet is an immutable severity-to-rule mapping.
type RuleSet struct {
	rules map[domain.Severity]SeverityRule
}

// NewRuleSet copies rules into a RuleSet. The minor rule must be present
// because it is the fallback for unknown severities.
func NewRuleSet(rules map[domain.Severity]SeverityRule) (RuleSet, error) {
	if _, ok := rules[domain.SeverityMinor]; !ok {
		return RuleSet{}, fmt.Errorf("%w: rule for %q is required", ErrInvalidConfig, domain.SeverityMinor)
	}

	copied := make(map[domain.Severity]SeverityRule, len(rules))
	for sev, rule := range rules {
		if err := rule.validate(); err != nil {
			return RuleSet{}, fmt.Errorf("%w: severity %q: %v", ErrInvalidConfig, sev, err)
		}
		copied[sev] = rule
	}
	return RuleSet{rules: copied}, nil
}

// For returns the rule for a severity. Unrecognised severities get the
// minor rule: misclassifying a fault must not fail a deadline calculation.
func (s RuleSet) For(sev domain.Severity) SeverityRule {
	if rule, ok := s.rules[sev]; ok {
		return rule
	}
	return s.rules[domain.SeverityMinor]
}
