package budget

import (
	"sort"
	"strings"

	"budgetapp/internal/core"
	"budgetapp/internal/ledger"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var rowLocale = language.MustParse("en-CA")

// Row carries the derived metrics for one budgeted category.
type Row struct {
	Rule            Rule
	Category        string
	Planned         decimal.Decimal
	Available       decimal.Decimal
	Spent           decimal.Decimal
	RemainingToDate decimal.Decimal
	OverToDate      decimal.Decimal
	PctToDate       float64
	PctPlan         float64
	UnlockedPct     float64
}

// HasPlan is false for rules whose planned budget is zero.
func (r Row) HasPlan() bool { return r.Planned.IsPositive() }

// Unbudgeted is spend in a category that has no rule for the month.
type Unbudgeted struct {
	Category string
	Spent    decimal.Decimal
}

// Report is the budgets screen for one month.
type Report struct {
	Month          string
	Rows           []Row
	Unbudgeted     []Unbudgeted
	PlannedIncome  decimal.Decimal
	IncomeToDate   decimal.Decimal
	TotalPlanned   decimal.Decimal
	TotalAvailable decimal.Decimal
	TotalSpent     decimal.Decimal
	TotalRemaining decimal.Decimal
	UnlockedPct    float64
}

// NewRow computes the metrics for a rule given the category spend.
func NewRow(r Rule, spent, incomeToDate, plannedIncome decimal.Decimal) Row {
	planned := PlannedBudget(r, plannedIncome)
	available := AvailableBudget(r, planned, incomeToDate, plannedIncome)
	return Row{
		Rule:            r,
		Category:        r.Category,
		Planned:         planned,
		Available:       available,
		Spent:           spent,
		RemainingToDate: core.MaxZero(available.Sub(spent)),
		OverToDate:      core.MaxZero(spent.Sub(available)),
		PctToDate:       core.Pct(spent, available),
		PctPlan:         core.Pct(spent, planned),
		UnlockedPct:     core.Pct(available, planned),
	}
}

// Evaluate builds the report for month from the rules, the transactions
// and the user's planned income. Rules for other months are ignored.
func Evaluate(month string, rules []Rule, txs []core.Transaction, plannedIncome decimal.Decimal) Report {
	spend := ledger.SpentByCategory(txs, month)
	summary := ledger.SummarizeMonth(txs, month)

	rep := Report{
		Month:         month,
		PlannedIncome: plannedIncome,
		IncomeToDate:  summary.Income,
	}

	budgeted := make(map[string]bool)
	for _, r := range rules {
		if r.Month != month {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(r.Category))
		budgeted[key] = true
		row := NewRow(r, spentFor(spend, r.Category), summary.Income, plannedIncome)
		rep.Rows = append(rep.Rows, row)
		rep.TotalPlanned = rep.TotalPlanned.Add(row.Planned)
		rep.TotalAvailable = rep.TotalAvailable.Add(row.Available)
		rep.TotalSpent = rep.TotalSpent.Add(row.Spent)
	}
	col := collate.New(rowLocale, collate.IgnoreCase)
	sort.SliceStable(rep.Rows, func(i, j int) bool {
		return col.CompareString(rep.Rows[i].Category, rep.Rows[j].Category) < 0
	})

	for cat, amt := range spend {
		if budgeted[strings.ToLower(strings.TrimSpace(cat))] || !amt.IsPositive() {
			continue
		}
		rep.Unbudgeted = append(rep.Unbudgeted, Unbudgeted{Category: cat, Spent: amt})
	}
	sort.Slice(rep.Unbudgeted, func(i, j int) bool {
		a, b := rep.Unbudgeted[i], rep.Unbudgeted[j]
		if !a.Spent.Equal(b.Spent) {
			return a.Spent.GreaterThan(b.Spent)
		}
		return col.CompareString(a.Category, b.Category) < 0
	})

	rep.TotalRemaining = rep.TotalAvailable.Sub(rep.TotalSpent)
	rep.UnlockedPct = core.Pct(summary.Income, plannedIncome)
	return rep
}

func spentFor(spend map[string]decimal.Decimal, category string) decimal.Decimal {
	total := decimal.Zero
	for cat, v := range spend {
		if strings.EqualFold(strings.TrimSpace(cat), strings.TrimSpace(category)) {
			total = total.Add(v)
		}
	}
	return total
}
