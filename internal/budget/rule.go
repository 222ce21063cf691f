// Package budget evaluates category budget rules against income and spend.
package budget

import (
	"errors"
	"fmt"
	"strings"

	"budgetapp/internal/core"

	"github.com/shopspring/decimal"
)

const (
	Percent RuleType = "PERCENT"
	Fixed   RuleType = "FIXED"

	Linear   ReleaseRule = "LINEAR"
	NoPacing ReleaseRule = "NONE"
)

type (
	RuleType    string
	ReleaseRule string

	// Rule is a per-month budget for one category. Value is percent points
	// for PERCENT rules and a currency amount for FIXED rules.
	Rule struct {
		ID       string
		PeriodID int64
		Month    string
		Category string
		Type     RuleType
		Value    decimal.Decimal
		Release  ReleaseRule
	}

	// Period is a backend budget period. Its month is derived from StartDate.
	Period struct {
		ID        int64
		StartDate string
		EndDate   string
	}
)

var (
	ErrInvalidMonth   = errors.New("invalid month")
	ErrEmptyCategory  = errors.New("empty category")
	ErrInvalidType    = errors.New("invalid budget type")
	ErrInvalidRelease = errors.New("invalid release rule")
	ErrInvalidValue   = errors.New("budget amount must be greater than zero")
	ErrDuplicateRule  = errors.New("a budget already exists for this category and month")
)

// ParseRuleType accepts any casing. Blank input defaults to FIXED.
func ParseRuleType(s string) (RuleType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(Fixed):
		return Fixed, nil
	case string(Percent):
		return Percent, nil
	}
	return "", ErrInvalidType
}

// ParseReleaseRule accepts any casing. Blank input defaults to NONE.
func ParseReleaseRule(s string) (ReleaseRule, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(NoPacing):
		return NoPacing, nil
	case string(Linear):
		return Linear, nil
	}
	return "", ErrInvalidRelease
}

// Month returns the YYYY-MM key of the period.
func (p Period) Month() string { return core.MonthKey(p.StartDate) }

// Label renders the period for selectors.
func (p Period) Label() string { return core.MonthLabel(p.Month()) }

// ValidateRule checks a rule before it is sent to the backend.
func ValidateRule(r Rule) error {
	if !core.ValidMonthKey(r.Month) {
		return fmt.Errorf("%w: %q", ErrInvalidMonth, r.Month)
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	if r.Type != Percent && r.Type != Fixed {
		return ErrInvalidType
	}
	if r.Release != Linear && r.Release != NoPacing {
		return ErrInvalidRelease
	}
	if !r.Value.IsPositive() {
		return ErrInvalidValue
	}
	return nil
}

// EnsureUnique enforces one rule per (month, category). A rule does not
// conflict with itself, so updates pass.
func EnsureUnique(r Rule, existing []Rule) error {
	for _, e := range existing {
		if e.ID != "" && e.ID == r.ID {
			continue
		}
		if e.Month == r.Month && strings.EqualFold(strings.TrimSpace(e.Category), strings.TrimSpace(r.Category)) {
			return ErrDuplicateRule
		}
	}
	return nil
}

// PlannedBudget is the spending ceiling implied by the rule and the
// planned income for the month.
func PlannedBudget(r Rule, plannedIncome decimal.Decimal) decimal.Decimal {
	if r.Type == Percent {
		return core.PercentOf(plannedIncome, r.Value)
	}
	return r.Value
}

// AvailableBudget is the part of planned that income received so far has
// unlocked. NONE releases everything at once. LINEAR paces with income:
// PERCENT rules apply the percent to income received, FIXED rules scale by
// incomeToDate/plannedIncome and release in full when no plan exists.
func AvailableBudget(r Rule, planned, incomeToDate, plannedIncome decimal.Decimal) decimal.Decimal {
	if r.Release != Linear {
		return planned
	}
	if r.Type == Percent {
		return core.PercentOf(incomeToDate, r.Value)
	}
	if !plannedIncome.IsPositive() {
		return planned
	}
	ratio := incomeToDate.Div(plannedIncome)
	if ratio.IsNegative() {
		ratio = decimal.Zero
	}
	if ratio.GreaterThan(decimal.NewFromInt(1)) {
		ratio = decimal.NewFromInt(1)
	}
	return planned.Mul(ratio)
}
