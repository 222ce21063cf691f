package http

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"budgetapp/internal/accounts"
	"budgetapp/internal/api"
	"budgetapp/internal/core"
	"budgetapp/internal/imports"
	"budgetapp/internal/ledger"
	applog "budgetapp/internal/log"
	"budgetapp/internal/settings"
	"budgetapp/internal/sheets"
	"budgetapp/internal/state"
	"budgetapp/internal/txentry"

	"github.com/go-chi/chi/v5"
)

type tableView struct {
	Filter      ledger.Filter
	FilterQuery string
	Rows        []core.Transaction
	Summary     ledger.Summary
	Months      []string
	Categories  []string
	Accounts    []string
}

// formErrorField keys errors that belong to the whole form.
const formErrorField = "form"

type formView struct {
	Form        *txentry.Form
	Kinds       []core.TxKind
	Accounts    []core.Account
	Buckets     []accounts.BucketOption
	FromBuckets []accounts.BucketOption
	Errors      map[string]string
}

type transactionsView struct {
	Table    tableView
	Form     formView
	Settings settings.Settings
}

func newTableView(txs []core.Transaction, f ledger.Filter) tableView {
	rows := ledger.SortByDateDesc(f.Apply(txs))
	return tableView{
		Filter:      f,
		FilterQuery: FilterValues(f).Encode(),
		Rows:        rows,
		Summary:     ledger.Summarize(rows),
		Months:      ledger.Months(txs),
		Categories:  ledger.Categories(txs),
		Accounts:    ledger.Accounts(txs),
	}
}

// newFormView normalizes f and lists the bucket choices for whichever
// account each variant has selected.
func newFormView(f *txentry.Form, accts []core.Account, buckets map[string][]core.Bucket, errs []txentry.FieldError) formView {
	f.Normalize(accts)
	v := formView{
		Form:     f,
		Kinds:    []core.TxKind{core.Expense, core.Income, core.Transfer},
		Accounts: accts,
	}
	account := f.Expense.AccountID
	if f.Kind() == core.Income {
		account = f.Income.AccountID
	}
	if a, ok := core.FindAccount(accts, account); ok {
		v.Buckets = accounts.BucketOptions(a, buckets[a.ID])
	}
	if a, ok := core.FindAccount(accts, f.Transfer.FromAccountID); ok {
		v.FromBuckets = accounts.BucketOptions(a, buckets[a.ID])
	}
	if len(errs) > 0 {
		v.Errors = make(map[string]string, len(errs))
		for _, e := range errs {
			if _, seen := v.Errors[e.Field]; !seen {
				v.Errors[e.Field] = sentence(e.Err)
			}
		}
	}
	return v
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := mustPrincipal(r)

	snap, err := s.state.Snapshot(ctx, p.Session)
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	st, err := s.settings.Load(ctx, p.Key)
	if err != nil {
		s.internalError(w, r, applog.OpRead, err)
		return
	}
	form := txentry.New(core.Today(s.now()))
	s.renderPage(w, r, http.StatusOK, "transactions", pageData{Title: "Transactions", Nav: "transactions", Data: transactionsView{
		Table:    newTableView(snap.Transactions, ParseFilter(r.URL.Query())),
		Form:     newFormView(form, snap.Accounts, snap.Buckets, nil),
		Settings: st,
	}})
}

func (s *Server) handleTransactionsTable(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	txs, err := s.state.Transactions(r.Context(), p.Session)
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	s.writePartial(w, r, http.StatusOK, "tx_table", newTableView(txs, ParseFilter(r.URL.Query())), nil)
}

// handleTransactionForm renders the entry form: blank, seeded from an
// existing transaction (?edit=id), or re-rendered from the current inputs
// after a kind or account change.
func (s *Server) handleTransactionForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := mustPrincipal(r)
	q := r.URL.Query()

	snap, err := s.state.Snapshot(ctx, p.Session)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}

	var form *txentry.Form
	switch {
	case q.Get("edit") != "":
		id := q.Get("edit")
		var found bool
		for _, tx := range snap.Transactions {
			if tx.ID == id {
				form, found = txentry.FromTransaction(tx, snap.Accounts), true
				break
			}
		}
		if !found {
			s.writeError(w, r, http.StatusNotFound, "Transaction not found.")
			return
		}
	case q.Get("kind") != "":
		form = txentry.FromValues(q)
	default:
		form = txentry.New(core.Today(s.now()))
	}
	s.writePartial(w, r, http.StatusOK, "tx_form", newFormView(form, snap.Accounts, snap.Buckets, nil), nil)
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	p := mustPrincipal(r)

	accts, buckets, err := s.state.Accounts(ctx, p.Session)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}

	form := txentry.FromValues(r.PostForm)
	form.Normalize(accts)
	if errs := form.Validate(accts); len(errs) > 0 {
		if !isHTMX(r) {
			s.invalid(w, r, errs[0])
			return
		}
		s.writePartial(w, r, http.StatusUnprocessableEntity, "tx_form", newFormView(form, accts, buckets, errs), nil)
		return
	}
	records, err := form.Build(accts)
	if err != nil {
		s.invalid(w, r, err)
		return
	}

	created, err := s.createRecords(ctx, p, records)
	if created > 0 || err == nil {
		s.state.Invalidate(p.Session, state.ScopeAll)
	}
	if err != nil {
		s.rejectSubmit(w, r, form, accts, buckets, created, len(records), err)
		return
	}

	msg, partial := "Transaction saved.", false
	if form.Mode == txentry.ModeEdit {
		// Edits are create-then-delete; the backend has no update.
		if err := s.backend.DeleteTransaction(ctx, p.Session, form.EditingID); err != nil {
			if errors.Is(err, api.ErrUnauthorized) || !isHTMX(r) {
				s.fail(w, r, applog.OpUpdate, err)
				return
			}
			s.structured.LogError(ctx, "Replaced transaction could not be deleted", err, applog.ComponentBackend, applog.OpUpdate,
				applog.NewFields().WithRequestID(requestID(r)))
			_, reason := backendFailure(err)
			msg, partial = "The new version was saved but the original could not be removed: "+reason, true
		} else {
			msg = "Transaction updated."
		}
	}

	if !isHTMX(r) {
		http.Redirect(w, r, "/transactions", http.StatusSeeOther)
		return
	}
	fresh := txentry.New(core.Today(s.now()))
	s.writePartial(w, r, http.StatusOK, "tx_form", newFormView(fresh, accts, buckets, nil), func(b *HTMXResponseBuilder) {
		b.TriggerTransactionsChanged()
		if partial {
			b.TriggerErrorNotification(msg)
		} else {
			b.TriggerSuccessNotification(msg)
		}
	})
}

// rejectSubmit answers a backend failure on submit. HTMX gets the form
// back with the entered values and the reason, so the user can retry.
func (s *Server) rejectSubmit(w http.ResponseWriter, r *http.Request, form *txentry.Form, accts []core.Account, buckets map[string][]core.Bucket, created, total int, err error) {
	if errors.Is(err, api.ErrUnauthorized) || errors.Is(err, context.Canceled) || !isHTMX(r) {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	ctx := r.Context()
	s.structured.LogError(ctx, "Backend rejected transaction", err, applog.ComponentBackend, applog.OpCreate,
		applog.NewFields().WithRequestID(requestID(r)))

	_, msg := backendFailure(err)
	if created > 0 {
		msg = strconv.Itoa(created) + " of " + strconv.Itoa(total) + " records were saved before the failure: " + msg
	}
	view := newFormView(form, accts, buckets, nil)
	view.Errors = map[string]string{formErrorField: msg}
	s.writePartial(w, r, http.StatusUnprocessableEntity, "tx_form", view, func(b *HTMXResponseBuilder) {
		if created > 0 {
			b.TriggerTransactionsChanged()
		}
		b.TriggerErrorNotification(msg)
	})
}

// createRecords writes the records in order and stops at the first
// failure, returning how many were written.
func (s *Server) createRecords(ctx context.Context, p principal, records []api.NewTransaction) (int, error) {
	for i, rec := range records {
		id, err := s.backend.CreateTransaction(ctx, p.Session, rec)
		if err != nil {
			return i, err
		}
		s.structured.LogTransactionCreated(ctx, id, string(rec.IncomeOrExpense), rec.Account, rec.Bucket, rec.Amount)
	}
	return len(records), nil
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := mustPrincipal(r)
	id := chi.URLParam(r, "id")

	if err := s.backend.DeleteTransaction(ctx, p.Session, id); err != nil {
		s.fail(w, r, applog.OpDelete, err)
		return
	}
	s.state.Invalidate(p.Session, state.ScopeAll)
	applog.FromContext(ctx).InfoContext(ctx, "Transaction deleted", "transaction_id", id)
	done(w, r, "/transactions", SuccessResponse("Transaction deleted.").TriggerTransactionsChanged())
}

// handleExport sends the filtered transactions to the configured
// exporter.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		s.handleNotFound(w, r)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	p := mustPrincipal(r)

	txs, err := s.state.Transactions(ctx, p.Session)
	if err != nil {
		s.fail(w, r, applog.OpExport, err)
		return
	}
	filter := ParseFilter(r.PostForm)
	rows := ledger.SortByDateDesc(filter.Apply(txs))
	title := FormValue(r, "title")
	if title == "" {
		title = sheets.Title(p.Key, filter.Month)
	}
	req := sheets.NewExportRequest(p.Key, title, rows, s.now())
	if err := req.Validate(); err != nil {
		s.invalid(w, r, err)
		return
	}

	ref, err := s.exporter.Export(ctx, req)
	if err != nil {
		s.structured.LogError(ctx, "Export failed", err, applog.ComponentSheets, applog.OpExport,
			applog.NewFields().WithRequestID(requestID(r)))
		s.writeError(w, r, http.StatusBadGateway, "The export could not be started. Please try again.")
		return
	}
	applog.FromContext(ctx).InfoContext(ctx, "Export requested",
		applog.FieldJobID, req.ID.String(), applog.FieldCount, len(req.Rows), applog.FieldSheetsRef, ref)
	done(w, r, "/transactions?"+FilterValues(filter).Encode(),
		SuccessResponse("Exported "+pluralize(len(req.Rows), "transaction")+" to "+req.Title+"."))
}

// handleImportUpload sends a statement file to the backend for parsing
// and stages the preview for review.
func (s *Server) handleImportUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := mustPrincipal(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Upload a CSV or statement file under 5 MB.")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Choose a file to import.")
		return
	}
	defer file.Close()

	previews, err := s.backend.ImportTransactions(ctx, p.Session, filepath.Base(header.Filename), file)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	batch, err := s.imports.Stage(ctx, p.Key, previews, imports.Defaults{
		Bucket:  FormValue(r, "bucket"),
		Account: FormValue(r, "account"),
	})
	if errors.Is(err, imports.ErrEmptyPreview) {
		s.invalid(w, r, err)
		return
	}
	if err != nil {
		s.internalError(w, r, applog.OpCreate, err)
		return
	}
	redirect(w, r, "/imports/"+batch)
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
