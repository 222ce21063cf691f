package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"budgetapp/internal/budget"
)

type budgetRequest struct {
	BudgetPeriodID int64       `json:"budgetPeriodId,omitempty"`
	Type           string      `json:"type,omitempty"`
	Name           string      `json:"name,omitempty"`
	Category       string      `json:"category,omitempty"`
	Month          string      `json:"month,omitempty"`
	Planned        json.Number `json:"planned"`
	Value          json.Number `json:"value"`
	RuleType       string      `json:"ruleType"`
	ReleaseRule    string      `json:"releaseRule"`
	BucketID       *string     `json:"bucketId,omitempty"`
}

// ListBudgetPeriods fetches the periods, oldest first.
func (c *Client) ListBudgetPeriods(ctx context.Context, s Session) ([]budget.Period, error) {
	v, err := c.call(ctx, s, http.MethodGet, "/budget-periods", nil)
	if err != nil {
		return nil, err
	}
	var out []budget.Period
	for _, m := range objects(v) {
		out = append(out, toPeriod(m))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate < out[j].StartDate })
	return out, nil
}

// ListBudgets fetches the rules of one period.
func (c *Client) ListBudgets(ctx context.Context, s Session, period budget.Period) ([]budget.Rule, error) {
	v, err := c.call(ctx, s, http.MethodGet, "/budgets/"+strconv.FormatInt(period.ID, 10), nil)
	if err != nil {
		return nil, err
	}
	var out []budget.Rule
	for _, m := range objects(v) {
		out = append(out, toRule(m, period))
	}
	return out, nil
}

// CreateBudget posts a rule. The category doubles as the backend's budget
// name and the rule value as its planned amount.
func (c *Client) CreateBudget(ctx context.Context, s Session, r budget.Rule) (string, error) {
	v, err := c.call(ctx, s, http.MethodPost, "/budget", budgetRequest{
		BudgetPeriodID: r.PeriodID,
		Type:           "EXPENSE",
		Name:           r.Category,
		Category:       r.Category,
		Month:          r.Month,
		Planned:        json.Number(r.Value.String()),
		Value:          json.Number(r.Value.String()),
		RuleType:       string(r.Type),
		ReleaseRule:    string(r.Release),
	})
	if err != nil {
		return "", err
	}
	return idOf(v), nil
}

// UpdateBudget patches the amount and pacing of an existing rule.
func (c *Client) UpdateBudget(ctx context.Context, s Session, r budget.Rule) error {
	_, err := c.call(ctx, s, http.MethodPatch, "/api/budgets/"+escape(r.ID), budgetRequest{
		Planned:     json.Number(r.Value.String()),
		Value:       json.Number(r.Value.String()),
		RuleType:    string(r.Type),
		ReleaseRule: string(r.Release),
	})
	return err
}

// DeleteBudget removes a rule.
func (c *Client) DeleteBudget(ctx context.Context, s Session, id string) error {
	_, err := c.call(ctx, s, http.MethodDelete, "/api/budgets/"+escape(id), nil)
	return err
}
