package http

import (
	"net/http"

	"budgetapp/internal/accounts"
	"budgetapp/internal/core"
	applog "budgetapp/internal/log"
	"budgetapp/internal/state"

	"github.com/go-chi/chi/v5"
)

type accountsView struct {
	Cards  []accounts.Card
	Totals accounts.Totals
	Kinds  []core.AccountKind
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	accts, buckets, err := s.state.Accounts(r.Context(), p.Session)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	view := accountsView{
		Cards:  accounts.Cards(accts, buckets),
		Totals: accounts.Overview(accts),
		Kinds:  []core.AccountKind{core.Debit, core.Credit},
	}
	if isHTMX(r) && r.URL.Query().Get("partial") == "cards" {
		s.writePartial(w, r, http.StatusOK, "account_cards", view, nil)
		return
	}
	s.renderPage(w, r, http.StatusOK, "accounts", pageData{Title: "Accounts", Nav: "accounts", Data: view})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	p := mustPrincipal(r)

	in := accounts.NewAccount{Name: FormValue(r, "name")}
	kind, err := core.ParseAccountKind(FormValue(r, "kind"))
	if err != nil {
		s.invalid(w, r, err)
		return
	}
	in.Kind = kind
	if in.Balance, err = core.ParseSigned(FormValue(r, "balance")); err != nil {
		s.invalid(w, r, err)
		return
	}
	if err := accounts.ValidateNewAccount(in); err != nil {
		s.invalid(w, r, err)
		return
	}

	id, err := s.backend.CreateAccount(ctx, p.Session, core.Account{Name: in.Name, Kind: in.Kind, Balance: in.Balance})
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	s.state.Invalidate(p.Session, state.ScopeAccounts)
	applog.FromContext(ctx).InfoContext(ctx, "Account created",
		applog.FieldAccount, in.Name, applog.FieldKind, string(in.Kind), "account_id", id)
	done(w, r, "/accounts", SuccessResponse("Account "+in.Name+" created.").TriggerAccountsChanged())
}

func (s *Server) handleCreateBucket(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	p := mustPrincipal(r)
	accountID := chi.URLParam(r, "id")

	accts, _, err := s.state.Accounts(ctx, p.Session)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	owner, ok := core.FindAccount(accts, accountID)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "Account not found.")
		return
	}

	in := accounts.NewBucket{Name: FormValue(r, "name")}
	if in.Balance, err = core.ParseSigned(FormValue(r, "balance")); err != nil {
		s.invalid(w, r, err)
		return
	}
	if err := accounts.ValidateNewBucket(owner, in); err != nil {
		s.invalid(w, r, err)
		return
	}

	if _, err := s.backend.CreateBucket(ctx, p.Session, owner.ID, core.Bucket{Name: in.Name, Balance: in.Balance}); err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	s.state.Invalidate(p.Session, state.ScopeAccounts)
	applog.FromContext(ctx).InfoContext(ctx, "Bucket created", applog.FieldAccount, owner.Name, "bucket", in.Name)
	done(w, r, "/accounts", SuccessResponse("Bucket "+in.Name+" added to "+owner.Name+".").TriggerAccountsChanged())
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := mustPrincipal(r)
	id := chi.URLParam(r, "id")

	if err := s.backend.DeleteAccount(ctx, p.Session, id); err != nil {
		s.fail(w, r, applog.OpDelete, err)
		return
	}
	s.state.Invalidate(p.Session, state.ScopeAll)
	applog.FromContext(ctx).InfoContext(ctx, "Account deleted", "account_id", id)
	done(w, r, "/accounts", SuccessResponse("Account deleted.").TriggerTransactionsChanged())
}
