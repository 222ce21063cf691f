// This file implements utilities for parsing and validating HTTP request
// data: form values, month parameters and transaction filters.

package http

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"budgetapp/internal/core"
	"budgetapp/internal/ledger"
)

// maxUploadBytes bounds statement uploads.
const maxUploadBytes = 5 << 20

// ParseFormOrFail parses the request form and returns an error response on
// failure. Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format")
	}
	return nil
}

// FormValue returns a sanitized form value.
func FormValue(r *http.Request, key string) string {
	return sanitizeInput(r.FormValue(key))
}

// MonthParam reads a YYYY-MM value from values[key], falling back to the
// month of now when it is missing or malformed.
func MonthParam(values url.Values, key string, now time.Time) string {
	if m := strings.TrimSpace(values.Get(key)); core.ValidMonthKey(m) {
		return m
	}
	return core.CurrentMonthKey(now)
}

// Filter parameter names, shared by the filter form, the table partial and
// the export form.
const (
	paramQuery       = "q"
	paramDescription = "description"
	paramCategory    = "category"
	paramAccount     = "account"
	paramMonth       = "month"
)

// ParseFilter reads the transactions filter from query values.
func ParseFilter(values url.Values) ledger.Filter {
	return ledger.Filter{
		Query:       sanitizeInput(values.Get(paramQuery)),
		Description: sanitizeInput(values.Get(paramDescription)),
		Category:    sanitizeInput(values.Get(paramCategory)),
		Account:     sanitizeInput(values.Get(paramAccount)),
		Month:       sanitizeInput(values.Get(paramMonth)),
	}
}

// FilterValues is the inverse of ParseFilter. Disabled predicates are
// left out.
func FilterValues(f ledger.Filter) url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" && val != ledger.All {
			v.Set(k, val)
		}
	}
	set(paramQuery, f.Query)
	set(paramDescription, f.Description)
	set(paramCategory, f.Category)
	set(paramAccount, f.Account)
	set(paramMonth, f.Month)
	return v
}
