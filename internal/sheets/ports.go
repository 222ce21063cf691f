// Package sheets defines the spreadsheet export port. Adapters live in
// the google and memory subpackages.
package sheets

import (
	"context"
	"errors"
	"strings"
	"time"

	"budgetapp/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNoRows     = errors.New("nothing to export")
	ErrEmptyTitle = errors.New("export title is required")
)

// Header is the first row of every exported sheet.
var Header = []string{"Date", "Description", "Category", "Account", "Kind", "Amount"}

// ExportRow is one transaction as it appears in the sheet.
type ExportRow struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Account     string          `json:"account"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
}

// ExportRequest is a set of transactions to write to one sheet tab.
type ExportRequest struct {
	ID          uuid.UUID   `json:"id"`
	User        string      `json:"user"`
	Title       string      `json:"title"`
	Rows        []ExportRow `json:"rows"`
	RequestedAt time.Time   `json:"requested_at"`
}

// TransactionExporter writes an export somewhere and returns a reference
// to where it went.
type TransactionExporter interface {
	Export(ctx context.Context, req ExportRequest) (ref string, err error)
}

// NewExportRequest builds a request from transactions, keeping their order.
func NewExportRequest(user, title string, txs []core.Transaction, now time.Time) ExportRequest {
	rows := make([]ExportRow, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, ExportRow{
			Date:        t.Date,
			Description: t.Description,
			Category:    t.Category,
			Account:     t.Account,
			Kind:        string(t.KindOrSign()),
			Amount:      t.Amount,
		})
	}
	return ExportRequest{
		ID:          uuid.New(),
		User:        user,
		Title:       strings.TrimSpace(title),
		Rows:        rows,
		RequestedAt: now.UTC(),
	}
}

// Validate checks the request is worth sending.
func (r ExportRequest) Validate() error {
	if r.Title == "" {
		return ErrEmptyTitle
	}
	if len(r.Rows) == 0 {
		return ErrNoRows
	}
	return nil
}

// Values renders the header and rows as sheet cells. Amounts are written
// as plain numbers so the sheet can sum them.
func (r ExportRequest) Values() [][]any {
	out := make([][]any, 0, len(r.Rows)+1)
	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	out = append(out, header)
	for _, row := range r.Rows {
		out = append(out, []any{
			row.Date,
			row.Description,
			row.Category,
			row.Account,
			row.Kind,
			row.Amount.StringFixed(2),
		})
	}
	return out
}

// Title builds the default tab name for an export, e.g. "ana 2025-12".
func Title(user, month string) string {
	month = strings.TrimSpace(month)
	if month == "" || month == "All" {
		month = "all"
	}
	return strings.TrimSpace(user + " " + month)
}

// ExportRecord is the outcome of a finished export.
type ExportRecord struct {
	JobID      uuid.UUID
	User       string
	Title      string
	RowCount   int
	Ref        string
	ExportedAt time.Time
}
