// Package ledger aggregates, filters and orders transactions for display.
package ledger

import (
	"sort"

	"budgetapp/internal/core"

	"github.com/shopspring/decimal"
)

// Summary totals a set of transactions. Expenses is a magnitude.
type Summary struct {
	Income   decimal.Decimal
	Expenses decimal.Decimal
	Net      decimal.Decimal
	Count    int
}

// Summarize sums income (amount > 0) and expense magnitudes (amount < 0).
func Summarize(txs []core.Transaction) Summary {
	var s Summary
	for _, t := range txs {
		switch {
		case t.Amount.IsPositive():
			s.Income = s.Income.Add(t.Amount)
		case t.Amount.IsNegative():
			s.Expenses = s.Expenses.Add(t.Amount.Neg())
		}
		s.Count++
	}
	s.Net = s.Income.Sub(s.Expenses)
	return s
}

// SummarizeMonth is Summarize restricted to one YYYY-MM month.
func SummarizeMonth(txs []core.Transaction, month string) Summary {
	return Summarize(InMonth(txs, month))
}

// InMonth keeps the transactions dated in month.
func InMonth(txs []core.Transaction, month string) []core.Transaction {
	var out []core.Transaction
	for _, t := range txs {
		if core.MonthKey(t.Date) == month {
			out = append(out, t)
		}
	}
	return out
}

// SpentByCategory sums expense magnitudes per category for month.
// Income never counts as category spend.
func SpentByCategory(txs []core.Transaction, month string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, t := range txs {
		if !t.Amount.IsNegative() || core.MonthKey(t.Date) != month {
			continue
		}
		out[t.Category] = out[t.Category].Add(t.Amount.Neg())
	}
	return out
}

// CategorySpend is one entry of a ranked spend list.
type CategorySpend struct {
	Category string
	Spent    decimal.Decimal
}

// TopCategories ranks month spend by amount, largest first. n <= 0 keeps all.
func TopCategories(txs []core.Transaction, month string, n int) []CategorySpend {
	var out []CategorySpend
	for cat, amt := range SpentByCategory(txs, month) {
		out = append(out, CategorySpend{Category: cat, Spent: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Spent.Equal(out[j].Spent) {
			return out[i].Spent.GreaterThan(out[j].Spent)
		}
		return out[i].Category < out[j].Category
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Months lists the distinct month keys, newest first.
func Months(txs []core.Transaction) []string {
	return distinct(txs, func(t core.Transaction) string { return core.MonthKey(t.Date) }, true)
}

// Categories lists the distinct categories in ascending order.
func Categories(txs []core.Transaction) []string {
	return distinct(txs, func(t core.Transaction) string { return t.Category }, false)
}

// Accounts lists the distinct account names in ascending order.
func Accounts(txs []core.Transaction) []string {
	return distinct(txs, func(t core.Transaction) string { return t.Account }, false)
}

func distinct(txs []core.Transaction, key func(core.Transaction) string, desc bool) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range txs {
		k := key(t)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	if desc {
		sort.Sort(sort.Reverse(sort.StringSlice(out)))
	} else {
		sort.Strings(out)
	}
	return out
}
