// Package txentry is the add/edit transaction form.
//
// The form keeps one input variant per transaction kind. Switching kind
// only moves the active pointer, so each kind remembers its own account
// and bucket selection while the user toggles between them.
package txentry

import (
	"errors"
	"strings"

	"budgetapp/internal/api"
	"budgetapp/internal/core"
)

// Mode is add or edit.
type Mode string

const (
	ModeAdd  Mode = "add"
	ModeEdit Mode = "edit"
)

// TransferCategory is the bucket name both legs of a transfer are filed
// under.
const TransferCategory = "Transfer"

// unallocatedWire is how the backend spells the Unallocated sentinel.
const unallocatedWire = "-1"

var (
	ErrAccountRequired = errors.New("choose an account")
	ErrIncomeToCredit  = errors.New("income must go to a debit account")
	ErrBucketRequired  = errors.New("choose a bucket")
	ErrSameAccount     = errors.New("choose two different accounts")
	ErrUnknownAccount  = errors.New("account no longer exists")
)

// FieldError ties a validation error to the form field that caused it.
type FieldError struct {
	Field string
	Err   error
}

func (e FieldError) Error() string { return e.Field + ": " + e.Err.Error() }

func (e FieldError) Unwrap() error { return e.Err }

// Variant is the per-kind part of the form.
type Variant interface {
	Kind() core.TxKind
	validate(accounts []core.Account) []FieldError
	records(f *Form, accounts []core.Account) []api.NewTransaction
}

// ExpenseInput is money leaving an account. Buckets apply to debit
// accounts only.
type ExpenseInput struct {
	AccountID string
	BucketID  string
}

// IncomeInput is money arriving in a debit account bucket.
type IncomeInput struct {
	AccountID string
	BucketID  string
}

// TransferInput moves money between two accounts.
type TransferInput struct {
	FromAccountID string
	ToAccountID   string
	FromBucketID  string
}

// Form is the transaction entry state.
type Form struct {
	Mode      Mode
	EditingID string

	Date        string
	Description string
	Amount      string

	Expense  ExpenseInput
	Income   IncomeInput
	Transfer TransferInput

	kind core.TxKind
}

// New returns an empty add form for an expense dated today.
func New(today string) *Form {
	return &Form{
		Mode: ModeAdd,
		Date: today,
		kind: core.Expense,
	}
}

// Kind is the active kind.
func (f *Form) Kind() core.TxKind {
	if f.kind == "" {
		return core.Expense
	}
	return f.kind
}

// Switch makes kind the active variant. The inputs of every variant are
// left untouched. Unknown kinds are ignored.
func (f *Form) Switch(kind core.TxKind) {
	switch kind {
	case core.Expense, core.Income, core.Transfer:
		f.kind = kind
	}
}

// Active returns the variant for the active kind.
func (f *Form) Active() Variant {
	switch f.Kind() {
	case core.Income:
		return &f.Income
	case core.Transfer:
		return &f.Transfer
	default:
		return &f.Expense
	}
}

// Normalize applies the per-account rules to the stored selections.
// Credit accounts carry no bucket and an empty debit bucket becomes the
// Unallocated sentinel.
func (f *Form) Normalize(accounts []core.Account) {
	f.Date = strings.TrimSpace(f.Date)
	f.Description = strings.TrimSpace(f.Description)
	f.Amount = strings.TrimSpace(f.Amount)

	if a, ok := core.FindAccount(accounts, f.Expense.AccountID); ok {
		switch {
		case a.IsCredit():
			f.Expense.BucketID = ""
		case f.Expense.BucketID == "":
			f.Expense.BucketID = core.UnallocatedID
		}
	}
	if a, ok := core.FindAccount(accounts, f.Income.AccountID); ok && !a.IsCredit() && f.Income.BucketID == "" {
		f.Income.BucketID = core.UnallocatedID
	}
	if a, ok := core.FindAccount(accounts, f.Transfer.FromAccountID); ok {
		switch {
		case a.IsCredit():
			f.Transfer.FromBucketID = ""
		case f.Transfer.FromBucketID == "":
			f.Transfer.FromBucketID = core.UnallocatedID
		}
	}
}

// Validate lists everything that blocks submission.
func (f *Form) Validate(accounts []core.Account) []FieldError {
	var errs []FieldError
	if err := core.ValidateDate(f.Date); err != nil {
		errs = append(errs, FieldError{Field: "date", Err: err})
	}
	if _, err := core.ParseAmount(f.Amount); err != nil {
		errs = append(errs, FieldError{Field: "amount", Err: err})
	}
	return append(errs, f.Active().validate(accounts)...)
}

// Build turns a valid form into the records to create, with the amount
// signed for its direction.
func (f *Form) Build(accounts []core.Account) ([]api.NewTransaction, error) {
	f.Normalize(accounts)
	if errs := f.Validate(accounts); len(errs) > 0 {
		return nil, errs[0]
	}
	return f.Active().records(f, accounts), nil
}

func (f *Form) amount() string { return f.Amount }

func (in *ExpenseInput) Kind() core.TxKind { return core.Expense }

func (in *ExpenseInput) validate(accounts []core.Account) []FieldError {
	if in.AccountID == "" {
		return []FieldError{{Field: "account", Err: ErrAccountRequired}}
	}
	if _, ok := core.FindAccount(accounts, in.AccountID); !ok {
		return []FieldError{{Field: "account", Err: ErrUnknownAccount}}
	}
	return nil
}

func (in *ExpenseInput) records(f *Form, accounts []core.Account) []api.NewTransaction {
	acct, _ := core.FindAccount(accounts, in.AccountID)
	amt, _ := core.ParseAmount(f.amount())
	bucket := ""
	if !acct.IsCredit() {
		bucket = wireBucket(in.BucketID)
	}
	return []api.NewTransaction{{
		Date:            f.Date,
		Description:     f.Description,
		Bucket:          bucket,
		Account:         acct.Name,
		Amount:          amt.Neg(),
		IncomeOrExpense: core.Expense,
	}}
}

func (in *IncomeInput) Kind() core.TxKind { return core.Income }

func (in *IncomeInput) validate(accounts []core.Account) []FieldError {
	if in.AccountID == "" {
		return []FieldError{{Field: "account", Err: ErrAccountRequired}}
	}
	a, ok := core.FindAccount(accounts, in.AccountID)
	if !ok {
		return []FieldError{{Field: "account", Err: ErrUnknownAccount}}
	}
	if a.IsCredit() {
		return []FieldError{{Field: "account", Err: ErrIncomeToCredit}}
	}
	if in.BucketID == "" {
		return []FieldError{{Field: "bucket", Err: ErrBucketRequired}}
	}
	return nil
}

func (in *IncomeInput) records(f *Form, accounts []core.Account) []api.NewTransaction {
	acct, _ := core.FindAccount(accounts, in.AccountID)
	amt, _ := core.ParseAmount(f.amount())
	return []api.NewTransaction{{
		Date:            f.Date,
		Description:     f.Description,
		Bucket:          wireBucket(in.BucketID),
		Account:         acct.Name,
		Amount:          amt,
		IncomeOrExpense: core.Income,
	}}
}

func (in *TransferInput) Kind() core.TxKind { return core.Transfer }

func (in *TransferInput) validate(accounts []core.Account) []FieldError {
	var errs []FieldError
	from, fromOK := core.FindAccount(accounts, in.FromAccountID)
	_, toOK := core.FindAccount(accounts, in.ToAccountID)
	switch {
	case in.FromAccountID == "":
		errs = append(errs, FieldError{Field: "from_account", Err: ErrAccountRequired})
	case !fromOK:
		errs = append(errs, FieldError{Field: "from_account", Err: ErrUnknownAccount})
	}
	switch {
	case in.ToAccountID == "":
		errs = append(errs, FieldError{Field: "to_account", Err: ErrAccountRequired})
	case !toOK:
		errs = append(errs, FieldError{Field: "to_account", Err: ErrUnknownAccount})
	}
	if in.FromAccountID != "" && in.FromAccountID == in.ToAccountID {
		errs = append(errs, FieldError{Field: "to_account", Err: ErrSameAccount})
	}
	if fromOK && !from.IsCredit() && in.FromBucketID == "" {
		errs = append(errs, FieldError{Field: "from_bucket", Err: ErrBucketRequired})
	}
	return errs
}

// records emits the outflow first. The two writes are independent; the
// backend has no transfer endpoint.
func (in *TransferInput) records(f *Form, accounts []core.Account) []api.NewTransaction {
	from, _ := core.FindAccount(accounts, in.FromAccountID)
	to, _ := core.FindAccount(accounts, in.ToAccountID)
	amt, _ := core.ParseAmount(f.amount())
	desc := f.Description
	if desc == "" {
		desc = TransferDescription(from.Name, to.Name)
	}
	return []api.NewTransaction{
		{
			Date:            f.Date,
			Description:     desc,
			Bucket:          TransferCategory,
			Account:         from.Name,
			Amount:          amt.Neg(),
			IncomeOrExpense: core.Transfer,
		},
		{
			Date:            f.Date,
			Description:     desc,
			Bucket:          TransferCategory,
			Account:         to.Name,
			Amount:          amt,
			IncomeOrExpense: core.Transfer,
		},
	}
}

// TransferDescription is the default description for a transfer.
func TransferDescription(from, to string) string {
	return "Transfer: " + from + " → " + to
}

func wireBucket(id string) string {
	if id == core.UnallocatedID {
		return unallocatedWire
	}
	return id
}
