package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"budgetapp/internal/core"
	"budgetapp/internal/log"

	"golang.org/x/sync/errgroup"
)

// DefaultFanOut bounds concurrent per-account bucket fetches.
const DefaultFanOut = 4

type createAccountRequest struct {
	Name          string      `json:"name"`
	CreditOrDebit string      `json:"creditOrDebit"`
	Balance       json.Number `json:"balance"`
}

type createBucketRequest struct {
	Name    string      `json:"name"`
	Balance json.Number `json:"balance"`
}

// ListAccounts fetches GET /bankaccounts.
func (c *Client) ListAccounts(ctx context.Context, s Session) ([]core.Account, error) {
	v, err := c.call(ctx, s, http.MethodGet, "/bankaccounts", nil)
	if err != nil {
		return nil, err
	}
	var out []core.Account
	for _, m := range objects(v) {
		out = append(out, toAccount(m))
	}
	return out, nil
}

// CreateAccount posts a new account and returns its id.
func (c *Client) CreateAccount(ctx context.Context, s Session, a core.Account) (string, error) {
	v, err := c.call(ctx, s, http.MethodPost, "/bankaccount", createAccountRequest{
		Name:          a.Name,
		CreditOrDebit: string(a.Kind),
		Balance:       json.Number(a.Balance.String()),
	})
	if err != nil {
		return "", err
	}
	return idOf(v), nil
}

// DeleteAccount removes an account.
func (c *Client) DeleteAccount(ctx context.Context, s Session, id string) error {
	_, err := c.call(ctx, s, http.MethodDelete, "/bankaccount/"+escape(id), nil)
	return err
}

// ListBuckets fetches the buckets of one account.
func (c *Client) ListBuckets(ctx context.Context, s Session, accountID string) ([]core.Bucket, error) {
	v, err := c.call(ctx, s, http.MethodGet, "/bankaccount/"+escape(accountID)+"/buckets", nil)
	if err != nil {
		return nil, err
	}
	var out []core.Bucket
	for _, m := range objects(v) {
		b := toBucket(m)
		if b.BankAccountID == "" {
			b.BankAccountID = accountID
		}
		out = append(out, b)
	}
	return out, nil
}

// CreateBucket adds a bucket to an account.
func (c *Client) CreateBucket(ctx context.Context, s Session, accountID string, b core.Bucket) (string, error) {
	v, err := c.call(ctx, s, http.MethodPost, "/bank-accounts/"+escape(accountID)+"/buckets", createBucketRequest{
		Name:    b.Name,
		Balance: json.Number(b.Balance.String()),
	})
	if err != nil {
		return "", err
	}
	return idOf(v), nil
}

// LoadAccountsWithBuckets fetches the accounts and then each debit
// account's buckets concurrently. A failing bucket fetch degrades to an
// empty list for that account; only an auth failure aborts, since every
// other call would fail the same way.
func (c *Client) LoadAccountsWithBuckets(ctx context.Context, s Session, limit int) ([]core.Account, map[string][]core.Bucket, error) {
	accounts, err := c.ListAccounts(ctx, s)
	if err != nil {
		return nil, nil, fmt.Errorf("list accounts: %w", err)
	}
	if limit <= 0 {
		limit = DefaultFanOut
	}

	var (
		mu      sync.Mutex
		buckets = make(map[string][]core.Bucket, len(accounts))
		authErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, a := range accounts {
		if a.IsCredit() || a.ID == "" {
			continue
		}
		g.Go(func() error {
			bs, err := c.ListBuckets(gctx, s, a.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if isUnauthorized(err) {
					authErr = err
					return err
				}
				c.logger.WarnContext(ctx, "Bucket fetch failed, showing account without buckets",
					"account_id", a.ID, log.FieldError, err)
				buckets[a.ID] = []core.Bucket{}
				return nil
			}
			buckets[a.ID] = bs
			return nil
		})
	}
	_ = g.Wait()
	if authErr != nil {
		return nil, nil, authErr
	}
	return accounts, buckets, nil
}
