// Package settings keeps each user's dropdown choices and monthly income
// plan.
//
// Chip edits are optimistic: the change is persisted first and rolled back
// to the full previous snapshot when its remote commit fails.
package settings

import (
	"errors"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var (
	ErrEmptyValue   = errors.New("value must not be empty")
	ErrDuplicate    = errors.New("value already exists")
	ErrMissing      = errors.New("value does not exist")
	ErrInvalidMonth = errors.New("month must be YYYY-MM")
	ErrNegative     = errors.New("planned income must not be negative")
)

// Settings are the choices offered in the entry and filter dropdowns.
type Settings struct {
	Categories []string
	Accounts   []string
}

var (
	defaultCategories = []string{"Groceries", "Dining", "Gas", "Shopping", "Subscriptions", "Income", "Rent", "Other"}
	defaultAccounts   = []string{"TD Chequing", "TD Visa", "Cash", "Savings"}

	locale = language.MustParse("en-CA")
)

// Defaults returns a fresh copy of the default settings.
func Defaults() Settings {
	return Settings{
		Categories: DedupeAndSort(defaultCategories),
		Accounts:   DedupeAndSort(defaultAccounts),
	}
}

// Normalize dedupes and sorts both lists.
func (s Settings) Normalize() Settings {
	return Settings{
		Categories: DedupeAndSort(s.Categories),
		Accounts:   DedupeAndSort(s.Accounts),
	}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	return Settings{
		Categories: slices.Clone(s.Categories),
		Accounts:   slices.Clone(s.Accounts),
	}
}

// DedupeAndSort trims, drops blanks and case-insensitive duplicates (the
// first spelling wins) and sorts in en-CA collation order.
func DedupeAndSort(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		k := strings.ToLower(it)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, it)
	}
	// Collators keep internal buffers, so each call gets its own.
	collate.New(locale, collate.IgnoreCase).SortStrings(out)
	return out
}

func contains(items []string, v string) bool {
	return slices.ContainsFunc(items, func(it string) bool { return strings.EqualFold(it, v) })
}

func without(items []string, v string) []string {
	return slices.DeleteFunc(slices.Clone(items), func(it string) bool { return strings.EqualFold(it, v) })
}
