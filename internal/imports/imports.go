// Package imports stages uploaded statement rows for review before they
// are written to the backend one by one.
package imports

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"budgetapp/internal/api"
	"budgetapp/internal/core"
	"budgetapp/internal/log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is where a row is in review.
type Status string

const (
	StatusNeedsInfo Status = "needs_info"
	StatusReady     Status = "ready"
	StatusSaving    Status = "saving"
	StatusSaved     Status = "saved"
	StatusError     Status = "error"
)

var (
	ErrRowSaved     = errors.New("row is already saved")
	ErrRowNotReady  = errors.New("row needs a bucket and an account")
	ErrRowInFlight  = errors.New("row is being saved")
	ErrEmptyPreview = errors.New("the file contained no transactions")
)

// Row is one staged transaction.
type Row struct {
	ID          string
	BatchID     string
	User        string
	Position    int
	Date        string
	Description string
	Amount      decimal.Decimal
	Bucket      string
	Account     string
	Status      Status
	Error       string
}

// Committable reports whether Commit would try to save the row.
func (r Row) Committable() bool {
	return r.Status == StatusReady || (r.Status == StatusError && r.complete())
}

func (r Row) complete() bool {
	return strings.TrimSpace(r.Bucket) != "" && strings.TrimSpace(r.Account) != ""
}

func (r *Row) recompute() {
	if r.complete() {
		r.Status = StatusReady
	} else {
		r.Status = StatusNeedsInfo
	}
	r.Error = ""
}

// Kind is the backend direction for the row's amount.
func (r Row) Kind() core.TxKind {
	if r.Amount.IsNegative() {
		return core.Expense
	}
	return core.Income
}

// Repository persists staged rows.
type Repository interface {
	InsertImportRows(ctx context.Context, rows []Row) error
	ImportRow(ctx context.Context, user, id string) (Row, error)
	ImportRows(ctx context.Context, user, batchID string) ([]Row, error)
	UpdateImportRow(ctx context.Context, row Row) error
	DeleteImportBatch(ctx context.Context, user, batchID string) (int, error)
}

// Creator writes one transaction to the backend.
type Creator interface {
	CreateTransaction(ctx context.Context, t api.NewTransaction) (string, error)
}

// CreatorFunc adapts a function to Creator.
type CreatorFunc func(ctx context.Context, t api.NewTransaction) (string, error)

func (f CreatorFunc) CreateTransaction(ctx context.Context, t api.NewTransaction) (string, error) {
	return f(ctx, t)
}

// Defaults prefill the bucket and account of staged rows.
type Defaults struct {
	Bucket  string
	Account string
}

// Result summarizes a CommitAll.
type Result struct {
	Saved   int
	Failed  int
	Skipped int
}

// Service manages import batches.
type Service struct {
	repo   Repository
	logger *log.Logger
	newID  func() string
}

func NewService(repo Repository, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{
		repo:   repo,
		logger: logger.WithComponent(log.ComponentImports),
		newID:  uuid.NewString,
	}
}

// Stage stores the preview rows as a new batch and returns its id.
func (s *Service) Stage(ctx context.Context, user string, previews []api.ImportPreview, d Defaults) (string, error) {
	if len(previews) == 0 {
		return "", ErrEmptyPreview
	}
	batch := s.newID()
	rows := make([]Row, 0, len(previews))
	for i, p := range previews {
		r := Row{
			ID:          s.newID(),
			BatchID:     batch,
			User:        user,
			Position:    i,
			Date:        strings.TrimSpace(p.Date),
			Description: strings.TrimSpace(p.Description),
			Amount:      p.Amount,
			Bucket:      strings.TrimSpace(d.Bucket),
			Account:     strings.TrimSpace(d.Account),
		}
		r.recompute()
		rows = append(rows, r)
	}
	if err := s.repo.InsertImportRows(ctx, rows); err != nil {
		return "", fmt.Errorf("stage import: %w", err)
	}
	s.logger.InfoContext(ctx, "Import staged", log.FieldUser, user, log.FieldBatchID, batch, "rows", len(rows))
	return batch, nil
}

// Rows lists a batch in file order.
func (s *Service) Rows(ctx context.Context, user, batchID string) ([]Row, error) {
	rows, err := s.repo.ImportRows(ctx, user, batchID)
	if err != nil {
		return nil, fmt.Errorf("list import rows: %w", err)
	}
	return rows, nil
}

// Row fetches one row.
func (s *Service) Row(ctx context.Context, user, id string) (Row, error) {
	r, err := s.repo.ImportRow(ctx, user, id)
	if err != nil {
		return Row{}, fmt.Errorf("load import row: %w", err)
	}
	return r, nil
}

// Update sets a row's bucket and account and recomputes its status.
func (s *Service) Update(ctx context.Context, user, id, bucket, account string) (Row, error) {
	r, err := s.Row(ctx, user, id)
	if err != nil {
		return Row{}, err
	}
	switch r.Status {
	case StatusSaved:
		return r, ErrRowSaved
	case StatusSaving:
		return r, ErrRowInFlight
	}
	r.Bucket = strings.TrimSpace(bucket)
	r.Account = strings.TrimSpace(account)
	r.recompute()
	if err := s.repo.UpdateImportRow(ctx, r); err != nil {
		return Row{}, fmt.Errorf("update import row: %w", err)
	}
	return r, nil
}

// Commit saves one ready (or previously failed) row through creator. A
// backend failure leaves the row in error with the message and is not
// returned as an error; the row can be retried.
func (s *Service) Commit(ctx context.Context, user, id string, creator Creator) (Row, error) {
	r, err := s.Row(ctx, user, id)
	if err != nil {
		return Row{}, err
	}
	return s.commit(ctx, r, creator)
}

func (s *Service) commit(ctx context.Context, r Row, creator Creator) (Row, error) {
	switch {
	case r.Status == StatusSaved:
		return r, ErrRowSaved
	case r.Status == StatusSaving:
		return r, ErrRowInFlight
	case !r.Committable():
		return r, ErrRowNotReady
	}

	r.Status, r.Error = StatusSaving, ""
	if err := s.repo.UpdateImportRow(ctx, r); err != nil {
		return Row{}, fmt.Errorf("mark row saving: %w", err)
	}

	_, err := creator.CreateTransaction(ctx, api.NewTransaction{
		Date:            r.Date,
		Description:     r.Description,
		Bucket:          r.Bucket,
		Account:         r.Account,
		Amount:          r.Amount,
		IncomeOrExpense: r.Kind(),
	})
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			// Put the row back; the user has to sign in again first.
			r.Status = StatusReady
			_ = s.repo.UpdateImportRow(context.WithoutCancel(ctx), r)
			return r, err
		}
		r.Status, r.Error = StatusError, api.UserMessage(err)
		s.logger.WarnContext(ctx, "Import row rejected",
			log.FieldRowID, r.ID, log.FieldBatchID, r.BatchID, log.FieldError, err)
	} else {
		r.Status = StatusSaved
	}
	if uerr := s.repo.UpdateImportRow(context.WithoutCancel(ctx), r); uerr != nil {
		return r, fmt.Errorf("record row result: %w", uerr)
	}
	return r, nil
}

// CommitAll commits every committable row of a batch in order. It stops
// early only on an auth failure.
func (s *Service) CommitAll(ctx context.Context, user, batchID string, creator Creator) (Result, error) {
	rows, err := s.Rows(ctx, user, batchID)
	if err != nil {
		return Result{}, err
	}
	var res Result
	for _, r := range rows {
		if !r.Committable() {
			res.Skipped++
			continue
		}
		out, err := s.commit(ctx, r, creator)
		if err != nil {
			return res, err
		}
		if out.Status == StatusSaved {
			res.Saved++
		} else {
			res.Failed++
		}
	}
	s.logger.InfoContext(ctx, "Import batch committed",
		log.FieldBatchID, batchID, "saved", res.Saved, "failed", res.Failed, "skipped", res.Skipped)
	return res, nil
}

// Discard drops a batch. Saved rows stay saved in the backend.
func (s *Service) Discard(ctx context.Context, user, batchID string) error {
	n, err := s.repo.DeleteImportBatch(ctx, user, batchID)
	if err != nil {
		return fmt.Errorf("discard import: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
