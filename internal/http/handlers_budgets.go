package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"budgetapp/internal/budget"
	"budgetapp/internal/core"
	applog "budgetapp/internal/log"
	"budgetapp/internal/settings"

	"github.com/go-chi/chi/v5"
)

const paramPeriod = "period"

type budgetsView struct {
	budgetView
	Categories []string
	Types      []budget.RuleType
	Releases   []budget.ReleaseRule
}

func periodKey(p budget.Period) string { return strconv.FormatInt(p.ID, 10) }

func budgetsURL(period string) string {
	if period == "" {
		return "/budgets"
	}
	return "/budgets?" + url.Values{paramPeriod: {period}}.Encode()
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := mustPrincipal(r)

	txs, err := s.state.Transactions(ctx, p.Session)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	month := MonthParam(r.URL.Query(), paramMonth, s.now())
	bv, err := s.loadBudgets(ctx, p, r.URL.Query().Get(paramPeriod), month, txs)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	st, err := s.settings.Load(ctx, p.Key)
	if err != nil {
		s.internalError(w, r, applog.OpRead, err)
		return
	}

	s.renderPage(w, r, http.StatusOK, "budgets", pageData{Title: "Budgets", Nav: "budgets", Data: budgetsView{
		budgetView: bv,
		Categories: st.Categories,
		Types:      []budget.RuleType{budget.Percent, budget.Fixed},
		Releases:   []budget.ReleaseRule{budget.Linear, budget.NoPacing},
	}})
}

// ruleInput reads the type, value and release fields shared by create
// and update.
func ruleInput(r *http.Request, rule *budget.Rule) error {
	var err error
	if rule.Type, err = budget.ParseRuleType(FormValue(r, "type")); err != nil {
		return err
	}
	if rule.Release, err = budget.ParseReleaseRule(FormValue(r, "release")); err != nil {
		return err
	}
	if rule.Value, err = core.ParseAmount(FormValue(r, "value")); err != nil {
		return budget.ErrInvalidValue
	}
	return nil
}

// findPeriod resolves the period a form posted.
func (s *Server) findPeriod(r *http.Request, p principal) (budget.Period, error) {
	periods, err := s.backend.ListBudgetPeriods(r.Context(), p.Session)
	if err != nil {
		return budget.Period{}, err
	}
	id := FormValue(r, "period_id")
	for _, period := range periods {
		if periodKey(period) == id {
			return period, nil
		}
	}
	return budget.Period{}, core.ErrNotFound
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	p := mustPrincipal(r)

	period, err := s.findPeriod(r, p)
	if errors.Is(err, core.ErrNotFound) {
		s.writeError(w, r, http.StatusUnprocessableEntity, "Choose a budget period.")
		return
	}
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}

	rule := budget.Rule{PeriodID: period.ID, Month: period.Month(), Category: FormValue(r, "category")}
	if err := ruleInput(r, &rule); err != nil {
		s.invalid(w, r, err)
		return
	}
	if err := budget.ValidateRule(rule); err != nil {
		s.invalid(w, r, err)
		return
	}
	existing, err := s.backend.ListBudgets(ctx, p.Session, period)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	if err := budget.EnsureUnique(rule, existing); err != nil {
		s.invalid(w, r, err)
		return
	}

	id, err := s.backend.CreateBudget(ctx, p.Session, rule)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	applog.FromContext(ctx).InfoContext(ctx, "Budget created",
		"budget_id", id, applog.FieldCategory, rule.Category, applog.FieldMonth, rule.Month)
	done(w, r, budgetsURL(periodKey(period)),
		SuccessResponse("Budget saved for "+rule.Category+".").TriggerBudgetsChanged(rule.Month))
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	p := mustPrincipal(r)
	id := chi.URLParam(r, "id")

	period, err := s.findPeriod(r, p)
	if errors.Is(err, core.ErrNotFound) {
		s.writeError(w, r, http.StatusNotFound, "Budget period not found.")
		return
	}
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	existing, err := s.backend.ListBudgets(ctx, p.Session, period)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	var rule budget.Rule
	found := false
	for _, e := range existing {
		if e.ID == id {
			rule, found = e, true
			break
		}
	}
	if !found {
		s.writeError(w, r, http.StatusNotFound, "Budget not found.")
		return
	}

	if err := ruleInput(r, &rule); err != nil {
		s.invalid(w, r, err)
		return
	}
	if err := budget.ValidateRule(rule); err != nil {
		s.invalid(w, r, err)
		return
	}
	if err := budget.EnsureUnique(rule, existing); err != nil {
		s.invalid(w, r, err)
		return
	}
	if err := s.backend.UpdateBudget(ctx, p.Session, rule); err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	done(w, r, budgetsURL(periodKey(period)),
		SuccessResponse("Budget updated.").TriggerBudgetsChanged(rule.Month))
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	p := mustPrincipal(r)
	id := chi.URLParam(r, "id")

	if err := s.backend.DeleteBudget(ctx, p.Session, id); err != nil {
		s.fail(w, r, applog.OpDelete, err)
		return
	}
	applog.FromContext(ctx).InfoContext(ctx, "Budget deleted", "budget_id", id)
	period := FormValue(r, "period_id")
	done(w, r, budgetsURL(period),
		SuccessResponse("Budget deleted.").TriggerBudgetsChanged(FormValue(r, paramMonth)))
}

// handleSetIncomePlan stores the planned income for a month. Blank means
// zero.
func (s *Server) handleSetIncomePlan(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	p := mustPrincipal(r)

	month := FormValue(r, paramMonth)
	amount, err := core.ParseSigned(FormValue(r, "amount"))
	if err != nil {
		s.invalid(w, r, err)
		return
	}

	err = s.settings.SetPlannedIncome(ctx, p.Key, month, amount)
	switch {
	case errors.Is(err, settings.ErrInvalidMonth), errors.Is(err, settings.ErrNegative):
		s.invalid(w, r, err)
		return
	case err != nil:
		s.internalError(w, r, applog.OpUpdate, err)
		return
	}
	done(w, r, budgetsURL(FormValue(r, "period_id")),
		SuccessResponse("Planned income for "+core.MonthLabel(month)+" saved.").TriggerBudgetsChanged(month))
}
