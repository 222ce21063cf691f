package http

import (
	"context"
	"errors"
	"net/http"

	"budgetapp/internal/accounts"
	"budgetapp/internal/api"
	"budgetapp/internal/budget"
	"budgetapp/internal/core"
	"budgetapp/internal/ledger"
	applog "budgetapp/internal/log"
	"budgetapp/internal/settings"
)

const (
	recentCount        = 5
	topCategoriesCount = 5
)

type dashboardView struct {
	Month         string
	Summary       ledger.Summary
	Totals        accounts.Totals
	Recent        []core.Transaction
	TopCategories []ledger.CategorySpend
	Budget        budgetView
	BudgetError   string
}

// budgetView is one period's rules evaluated against the ledger.
type budgetView struct {
	Periods   []budget.Period
	Period    budget.Period
	HasPeriod bool
	Rules     []budget.Rule
	Report    budget.Report
}

// loadBudgets picks a period (by id, else the one for month, else the
// latest) and evaluates its rules. With no periods the report only
// carries unbudgeted spending.
func (s *Server) loadBudgets(ctx context.Context, p principal, periodID, month string, txs []core.Transaction) (budgetView, error) {
	var v budgetView
	periods, err := s.backend.ListBudgetPeriods(ctx, p.Session)
	if err != nil {
		return v, err
	}
	v.Periods = periods
	v.Period, v.HasPeriod = choosePeriod(periods, periodID, month)
	if v.HasPeriod {
		month = v.Period.Month()
		if v.Rules, err = s.backend.ListBudgets(ctx, p.Session, v.Period); err != nil {
			return v, err
		}
	}
	income, err := s.settings.PlannedIncome(ctx, p.Key, month)
	if err != nil && !errors.Is(err, settings.ErrInvalidMonth) {
		return v, err
	}
	v.Report = budget.Evaluate(month, v.Rules, txs, income)
	return v, nil
}

func choosePeriod(periods []budget.Period, id, month string) (budget.Period, bool) {
	if len(periods) == 0 {
		return budget.Period{}, false
	}
	for _, p := range periods {
		if id != "" && periodKey(p) == id {
			return p, true
		}
	}
	for _, p := range periods {
		if p.Month() == month {
			return p, true
		}
	}
	latest := periods[0]
	for _, p := range periods[1:] {
		if p.StartDate > latest.StartDate {
			latest = p
		}
	}
	return latest, true
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := mustPrincipal(r)

	snap, err := s.state.Snapshot(ctx, p.Session)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}

	month := MonthParam(r.URL.Query(), paramMonth, s.now())
	view := dashboardView{
		Month:         month,
		Summary:       ledger.SummarizeMonth(snap.Transactions, month),
		Totals:        accounts.Overview(snap.Accounts),
		Recent:        ledger.Recent(snap.Transactions, recentCount),
		TopCategories: ledger.TopCategories(snap.Transactions, month, topCategoriesCount),
	}

	// The dashboard still renders when budgets are unavailable.
	view.Budget, err = s.loadBudgets(ctx, p, "", month, snap.Transactions)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			s.fail(w, r, applog.OpRead, err)
			return
		}
		applog.FromContext(ctx).WarnContext(ctx, "Budgets unavailable on dashboard", applog.FieldError, err)
		view.BudgetError = api.UserMessage(err)
	}

	s.renderPage(w, r, http.StatusOK, "dashboard", pageData{Title: "Dashboard", Nav: "dashboard", Data: view})
}
