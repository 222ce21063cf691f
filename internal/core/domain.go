package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	Debit  AccountKind = "DEBIT"
	Credit AccountKind = "CREDIT"

	Income   TxKind = "INCOME"
	Expense  TxKind = "EXPENSE"
	Transfer TxKind = "TRANSFER"

	StatusActive   = "ACTIVE"
	StatusArchived = "ARCHIVED"

	// UnallocatedID is the sentinel id of the computed, never-persisted bucket.
	UnallocatedID   = "UNALLOCATED"
	UnallocatedName = "Unallocated (auto)"
)

type (
	AccountKind string
	TxKind      string

	Account struct {
		ID      string
		Name    string
		Kind    AccountKind
		Balance decimal.Decimal
		Status  string
	}

	Bucket struct {
		ID              string
		Name            string
		Balance         decimal.Decimal
		BankAccountID   string
		BankAccountName string
	}

	Transaction struct {
		ID          string
		Date        string // YYYY-MM-DD
		Description string
		Category    string // bucket or category name
		Account     string // account name
		Amount      decimal.Decimal
		Kind        TxKind
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyDate     = errors.New("empty date")
	ErrInvalidDate   = errors.New("invalid date")
	ErrEmptyName     = errors.New("empty name")
	ErrInvalidKind   = errors.New("invalid account kind")
	ErrNotFound      = errors.New("not found")
)

// ParseAccountKind accepts any casing and defaults to DEBIT for blank input.
func ParseAccountKind(s string) (AccountKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(Debit):
		return Debit, nil
	case string(Credit):
		return Credit, nil
	}
	return "", ErrInvalidKind
}

func (k AccountKind) Valid() bool { return k == Debit || k == Credit }

func (a Account) IsCredit() bool { return a.Kind == Credit }

// IsExpense reports whether the transaction moves money out.
func (t Transaction) IsExpense() bool { return t.Amount.IsNegative() }

// IsIncome reports whether the transaction moves money in.
func (t Transaction) IsIncome() bool { return t.Amount.IsPositive() }

// KindOrSign returns the reported kind, falling back to the amount sign.
func (t Transaction) KindOrSign() TxKind {
	switch t.Kind {
	case Income, Expense, Transfer:
		return t.Kind
	}
	if t.Amount.IsNegative() {
		return Expense
	}
	return Income
}

// FindAccount looks an account up by id.
func FindAccount(accounts []Account, id string) (Account, bool) {
	for _, a := range accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

// FindAccountByName matches names case-insensitively.
func FindAccountByName(accounts []Account, name string) (Account, bool) {
	name = strings.TrimSpace(name)
	for _, a := range accounts {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return Account{}, false
}
