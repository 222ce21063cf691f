package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"budgetapp/internal/api"
	"budgetapp/internal/core"
	"budgetapp/internal/imports"
	applog "budgetapp/internal/log"
	"budgetapp/internal/settings"
	"budgetapp/internal/state"

	"github.com/go-chi/chi/v5"
)

type importView struct {
	BatchID  string
	Rows     []imports.Row
	Settings settings.Settings
	Ready    int
	Saved    int
}

type importRowView struct {
	Row      imports.Row
	Settings settings.Settings
}

// creator writes staged rows to the backend with the request's session.
func (s *Server) creator(p principal) imports.Creator {
	return imports.CreatorFunc(func(ctx context.Context, t api.NewTransaction) (string, error) {
		return s.backend.CreateTransaction(ctx, p.Session, t)
	})
}

func (s *Server) handleImportReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := mustPrincipal(r)
	batch := chi.URLParam(r, "batch")

	rows, err := s.imports.Rows(ctx, p.Key, batch)
	if errors.Is(err, core.ErrNotFound) || (err == nil && len(rows) == 0) {
		s.handleNotFound(w, r)
		return
	}
	if err != nil {
		s.internalError(w, r, applog.OpList, err)
		return
	}
	st, err := s.settings.Load(ctx, p.Key)
	if err != nil {
		s.internalError(w, r, applog.OpRead, err)
		return
	}

	view := importView{BatchID: batch, Rows: rows, Settings: st}
	for _, row := range rows {
		switch {
		case row.Status == imports.StatusSaved:
			view.Saved++
		case row.Committable():
			view.Ready++
		}
	}
	s.renderPage(w, r, http.StatusOK, "import_review", pageData{Title: "Review import", Nav: "transactions", Data: view})
}

// importRowError maps row state errors to responses.
func (s *Server) importRowError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, "Import row not found.")
	case errors.Is(err, imports.ErrRowSaved), errors.Is(err, imports.ErrRowInFlight):
		s.writeError(w, r, http.StatusConflict, sentence(err))
	case errors.Is(err, imports.ErrRowNotReady):
		s.invalid(w, r, err)
	case errors.Is(err, api.ErrUnauthorized):
		s.fail(w, r, op, err)
	default:
		s.internalError(w, r, op, err)
	}
}

func (s *Server) handleImportRowUpdate(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	p := mustPrincipal(r)

	row, err := s.imports.Update(ctx, p.Key, chi.URLParam(r, "id"), FormValue(r, "bucket"), FormValue(r, "account"))
	if err != nil {
		s.importRowError(w, r, applog.OpUpdate, err)
		return
	}
	s.writeImportRow(w, r, p, row, nil)
}

func (s *Server) handleImportRowCommit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := mustPrincipal(r)

	row, err := s.imports.Commit(ctx, p.Key, chi.URLParam(r, "id"), s.creator(p))
	if err != nil {
		s.importRowError(w, r, applog.OpCommit, err)
		return
	}
	if row.Status == imports.StatusSaved {
		s.state.Invalidate(p.Session, state.ScopeAll)
	}
	s.writeImportRow(w, r, p, row, func(b *HTMXResponseBuilder) {
		b.TriggerImportsChanged(row.BatchID)
		if row.Status == imports.StatusSaved {
			b.TriggerTransactionsChanged().TriggerSuccessNotification("Transaction saved.")
		} else {
			b.TriggerErrorNotification(row.Error)
		}
	})
}

// writeImportRow answers with the refreshed row, or sends a plain form
// post back to the review page.
func (s *Server) writeImportRow(w http.ResponseWriter, r *http.Request, p principal, row imports.Row, decorate func(*HTMXResponseBuilder)) {
	if !isHTMX(r) {
		http.Redirect(w, r, "/imports/"+row.BatchID, http.StatusSeeOther)
		return
	}
	st, err := s.settings.Load(r.Context(), p.Key)
	if err != nil {
		s.internalError(w, r, applog.OpRead, err)
		return
	}
	s.writePartial(w, r, http.StatusOK, "import_row", importRowView{Row: row, Settings: st}, decorate)
}

func (s *Server) handleImportCommitAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := mustPrincipal(r)
	batch := chi.URLParam(r, "batch")

	res, err := s.imports.CommitAll(ctx, p.Key, batch, s.creator(p))
	if res.Saved > 0 {
		s.state.Invalidate(p.Session, state.ScopeAll)
	}
	if err != nil {
		s.importRowError(w, r, applog.OpCommit, err)
		return
	}

	msg := pluralize(res.Saved, "transaction") + " saved"
	if res.Failed > 0 {
		msg += ", " + strconv.Itoa(res.Failed) + " failed"
	}
	if res.Skipped > 0 {
		msg += ", " + strconv.Itoa(res.Skipped) + " skipped"
	}
	msg += "."

	resp := NewHTMXResponse().TriggerImportsChanged(batch)
	if res.Saved > 0 {
		resp.TriggerTransactionsChanged()
	}
	if res.Failed > 0 {
		resp.TriggerErrorNotification(msg)
	} else {
		resp.TriggerSuccessNotification(msg)
	}
	if isHTMX(r) {
		resp.Header("HX-Refresh", "true")
	}
	done(w, r, "/imports/"+batch, resp)
}

func (s *Server) handleImportDiscard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := mustPrincipal(r)
	batch := chi.URLParam(r, "batch")

	if err := s.imports.Discard(ctx, p.Key, batch); err != nil {
		s.importRowError(w, r, applog.OpDelete, err)
		return
	}
	applog.FromContext(ctx).InfoContext(ctx, "Import discarded", applog.FieldBatchID, batch)
	redirect(w, r, "/transactions")
}

// RowViews pairs each row with the dropdown choices for the template.
func (v importView) RowViews() []importRowView {
	out := make([]importRowView, 0, len(v.Rows))
	for _, r := range v.Rows {
		out = append(out, importRowView{Row: r, Settings: v.Settings})
	}
	return out
}
