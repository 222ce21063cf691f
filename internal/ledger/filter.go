package ledger

import (
	"sort"
	"strings"

	"budgetapp/internal/core"
)

// All disables a dropdown filter.
const All = "All"

// Filter is a conjunction of independent predicates. Empty or All fields
// match everything.
type Filter struct {
	Query       string
	Description string
	Category    string
	Account     string
	Month       string
}

// IsZero reports whether the filter matches every transaction.
func (f Filter) IsZero() bool {
	return strings.TrimSpace(f.Query) == "" &&
		strings.TrimSpace(f.Description) == "" &&
		disabled(f.Category) && disabled(f.Account) && disabled(f.Month)
}

// Match applies every predicate to t.
func (f Filter) Match(t core.Transaction) bool {
	if !disabled(f.Category) && t.Category != f.Category {
		return false
	}
	if !disabled(f.Account) && t.Account != f.Account {
		return false
	}
	if !disabled(f.Month) && core.MonthKey(t.Date) != f.Month {
		return false
	}
	if d := strings.ToLower(strings.TrimSpace(f.Description)); d != "" {
		if !strings.Contains(strings.ToLower(t.Description), d) {
			return false
		}
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		lq := strings.ToLower(q)
		if !strings.Contains(strings.ToLower(t.Description), lq) &&
			!strings.Contains(strings.ToLower(t.Category), lq) &&
			!strings.Contains(strings.ToLower(t.Account), lq) &&
			!strings.Contains(t.Date, q) {
			return false
		}
	}
	return true
}

// Apply returns the matching transactions in their original order.
func (f Filter) Apply(txs []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// SortByDateDesc orders newest first. ISO dates compare lexicographically,
// so a string comparison is chronological. The input is not modified.
func SortByDateDesc(txs []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// Recent returns the n newest transactions.
func Recent(txs []core.Transaction, n int) []core.Transaction {
	sorted := SortByDateDesc(txs)
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func disabled(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == All
}
