// Package accounts derives the account and bucket balance views.
package accounts

import (
	"errors"
	"strings"

	"budgetapp/internal/core"

	"github.com/shopspring/decimal"
)

var (
	ErrCreditBuckets   = errors.New("credit accounts cannot hold buckets")
	ErrNegativeBalance = errors.New("bucket balance cannot be negative")
)

// BucketRow is one line of an account card. Synthetic rows are computed
// and never offered for edit or delete.
type BucketRow struct {
	ID        string
	Name      string
	Balance   decimal.Decimal
	Synthetic bool
}

// Card is the display model for one account.
type Card struct {
	Account     core.Account
	ShowBuckets bool
	Rows        []BucketRow
	Allocated   decimal.Decimal
	Unallocated decimal.Decimal
}

// Totals summarises all accounts.
type Totals struct {
	Cash        decimal.Decimal
	CreditOwed  decimal.Decimal
	DebitCount  int
	CreditCount int
}

// BucketsTotal sums the bucket balances.
func BucketsTotal(buckets []core.Bucket) decimal.Decimal {
	total := decimal.Zero
	for _, b := range buckets {
		total = total.Add(b.Balance)
	}
	return total
}

// Unallocated is the part of the account balance not assigned to any
// bucket, clamped at zero.
func Unallocated(account core.Account, buckets []core.Bucket) decimal.Decimal {
	return core.MaxZero(account.Balance.Sub(BucketsTotal(buckets)))
}

// DisplayRows lists the buckets and appends the synthetic Unallocated row
// when there is anything left over.
func DisplayRows(account core.Account, buckets []core.Bucket) []BucketRow {
	rows := make([]BucketRow, 0, len(buckets)+1)
	for _, b := range buckets {
		rows = append(rows, BucketRow{ID: b.ID, Name: b.Name, Balance: b.Balance})
	}
	if u := Unallocated(account, buckets); u.IsPositive() {
		rows = append(rows, BucketRow{
			ID:        core.UnallocatedID,
			Name:      core.UnallocatedName,
			Balance:   u,
			Synthetic: true,
		})
	}
	return rows
}

// NewCard builds the card for an account. Credit balances are liabilities,
// so credit cards show no bucket section.
func NewCard(account core.Account, buckets []core.Bucket) Card {
	c := Card{Account: account}
	if account.IsCredit() {
		return c
	}
	c.ShowBuckets = true
	c.Rows = DisplayRows(account, buckets)
	c.Allocated = BucketsTotal(buckets)
	c.Unallocated = Unallocated(account, buckets)
	return c
}

// Cards builds a card per account using the bucket map keyed by account id.
func Cards(accounts []core.Account, buckets map[string][]core.Bucket) []Card {
	out := make([]Card, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, NewCard(a, buckets[a.ID]))
	}
	return out
}

// Overview totals debit cash and credit owed.
func Overview(accounts []core.Account) Totals {
	var t Totals
	for _, a := range accounts {
		if a.IsCredit() {
			t.CreditOwed = t.CreditOwed.Add(a.Balance.Abs())
			t.CreditCount++
			continue
		}
		t.Cash = t.Cash.Add(a.Balance)
		t.DebitCount++
	}
	return t
}

// BucketOption is a choice in the transaction form's bucket dropdown.
type BucketOption struct {
	ID   string
	Name string
}

// BucketOptions lists the Unallocated sentinel first, then the real buckets.
// Credit accounts have no options.
func BucketOptions(account core.Account, buckets []core.Bucket) []BucketOption {
	if account.IsCredit() {
		return nil
	}
	opts := []BucketOption{{ID: core.UnallocatedID, Name: core.UnallocatedName}}
	for _, b := range buckets {
		opts = append(opts, BucketOption{ID: b.ID, Name: b.Name})
	}
	return opts
}

// NewAccount is the create-account input.
type NewAccount struct {
	Name    string
	Kind    core.AccountKind
	Balance decimal.Decimal
}

// ValidateNewAccount requires a name and a known kind.
func ValidateNewAccount(a NewAccount) error {
	if strings.TrimSpace(a.Name) == "" {
		return core.ErrEmptyName
	}
	if !a.Kind.Valid() {
		return core.ErrInvalidKind
	}
	return nil
}

// NewBucket is the create-bucket input.
type NewBucket struct {
	Name    string
	Balance decimal.Decimal
}

// ValidateNewBucket checks the bucket and its owning account.
func ValidateNewBucket(owner core.Account, b NewBucket) error {
	if owner.IsCredit() {
		return ErrCreditBuckets
	}
	if strings.TrimSpace(b.Name) == "" {
		return core.ErrEmptyName
	}
	if b.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	return nil
}
