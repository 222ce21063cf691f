package txentry

import (
	"net/url"
	"strings"

	"budgetapp/internal/api"
	"budgetapp/internal/core"
)

// Form field names. Every variant's inputs travel with each request as
// hidden fields, which is what lets a kind switch restore them.
const (
	fieldMode         = "mode"
	fieldEditingID    = "editing_id"
	fieldKind         = "kind"
	fieldDate         = "date"
	fieldDescription  = "description"
	fieldAmount       = "amount"
	fieldExpenseAcct  = "expense_account"
	fieldExpenseBkt   = "expense_bucket"
	fieldIncomeAcct   = "income_account"
	fieldIncomeBkt    = "income_bucket"
	fieldTransferFrom = "transfer_from"
	fieldTransferTo   = "transfer_to"
	fieldTransferBkt  = "transfer_bucket"
)

// Values encodes the whole form, inactive variants included.
func (f *Form) Values() url.Values {
	v := url.Values{}
	mode := f.Mode
	if mode == "" {
		mode = ModeAdd
	}
	v.Set(fieldMode, string(mode))
	v.Set(fieldEditingID, f.EditingID)
	v.Set(fieldKind, string(f.Kind()))
	v.Set(fieldDate, f.Date)
	v.Set(fieldDescription, f.Description)
	v.Set(fieldAmount, f.Amount)
	v.Set(fieldExpenseAcct, f.Expense.AccountID)
	v.Set(fieldExpenseBkt, f.Expense.BucketID)
	v.Set(fieldIncomeAcct, f.Income.AccountID)
	v.Set(fieldIncomeBkt, f.Income.BucketID)
	v.Set(fieldTransferFrom, f.Transfer.FromAccountID)
	v.Set(fieldTransferTo, f.Transfer.ToAccountID)
	v.Set(fieldTransferBkt, f.Transfer.FromBucketID)
	return v
}

// FromValues decodes a submitted form. The kind is only honored when it
// is one of the three known kinds.
func FromValues(v url.Values) *Form {
	get := func(k string) string { return strings.TrimSpace(v.Get(k)) }
	f := &Form{
		Mode:        ModeAdd,
		EditingID:   get(fieldEditingID),
		Date:        get(fieldDate),
		Description: get(fieldDescription),
		Amount:      get(fieldAmount),
		Expense:     ExpenseInput{AccountID: get(fieldExpenseAcct), BucketID: get(fieldExpenseBkt)},
		Income:      IncomeInput{AccountID: get(fieldIncomeAcct), BucketID: get(fieldIncomeBkt)},
		Transfer: TransferInput{
			FromAccountID: get(fieldTransferFrom),
			ToAccountID:   get(fieldTransferTo),
			FromBucketID:  get(fieldTransferBkt),
		},
		kind: core.Expense,
	}
	if Mode(get(fieldMode)) == ModeEdit && f.EditingID != "" {
		f.Mode = ModeEdit
	}
	f.Switch(core.TxKind(strings.ToUpper(get(fieldKind))))
	return f
}

// FromTransaction seeds an edit form from an existing transaction. The
// kind follows the amount sign and the account is matched by name.
func FromTransaction(tx core.Transaction, accounts []core.Account) *Form {
	f := &Form{
		Mode:      ModeEdit,
		EditingID: tx.ID,
		Date:      tx.Date,
		Amount:    tx.Amount.Abs().StringFixed(2),
	}
	if tx.Description != api.NoMerchant {
		f.Description = tx.Description
	}
	acct, _ := core.FindAccountByName(accounts, tx.Account)
	if tx.IsExpense() {
		f.kind = core.Expense
		f.Expense.AccountID = acct.ID
	} else {
		f.kind = core.Income
		f.Income.AccountID = acct.ID
	}
	f.Normalize(accounts)
	return f
}
