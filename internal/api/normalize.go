package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"budgetapp/internal/budget"
	"budgetapp/internal/core"

	"github.com/shopspring/decimal"
)

const (
	unnamedAccount = "(Unnamed account)"
	unnamedBucket  = "(Unnamed bucket)"
	noMerchant     = "(No merchant)"
	noCategory     = "(No category)"
	noAccount      = "(No account)"
)

// NoMerchant is the description shown for transactions without one.
const NoMerchant = noMerchant

// lookup walks a dotted path such as "bankAccount.id".
func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// first returns the first present alias.
func first(m map[string]any, aliases ...string) (any, bool) {
	for _, a := range aliases {
		if v, ok := lookup(m, a); ok {
			return v, true
		}
	}
	return nil, false
}

func stringOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// str returns the first alias holding a scalar. Nested objects are skipped
// so "bucket" never renders as a map when "bucket.name" is absent.
func str(m map[string]any, fallback string, aliases ...string) string {
	for _, a := range aliases {
		v, ok := lookup(m, a)
		if !ok {
			continue
		}
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		return stringOf(v)
	}
	return fallback
}

// num coerces numbers and numeric strings. Anything else is zero.
func num(m map[string]any, aliases ...string) decimal.Decimal {
	v, ok := first(m, aliases...)
	if !ok {
		return decimal.Zero
	}
	d, err := core.ParseSigned(stringOf(v))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func objects(v any) []map[string]any {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func toAccount(m map[string]any) core.Account {
	kind, err := core.ParseAccountKind(str(m, "", "creditOrDebit", "credit_or_debit"))
	if err != nil {
		kind = core.Debit
	}
	status := strings.ToUpper(str(m, core.StatusActive, "status"))
	if status != core.StatusArchived {
		status = core.StatusActive
	}
	return core.Account{
		ID:      str(m, "", "id", "accountId", "bankAccountId"),
		Name:    str(m, unnamedAccount, "name", "accountName"),
		Kind:    kind,
		Balance: num(m, "balance"),
		Status:  status,
	}
}

func toBucket(m map[string]any) core.Bucket {
	return core.Bucket{
		ID:              str(m, "", "id", "bucketId"),
		Name:            str(m, unnamedBucket, "name", "bucketName"),
		Balance:         num(m, "balance"),
		BankAccountID:   str(m, "", "bankAccountId", "bank_account_id", "bankAccount.id"),
		BankAccountName: str(m, "", "bankAccount.name", "bank_account.name"),
	}
}

func toTransaction(m map[string]any) core.Transaction {
	t := core.Transaction{
		ID:          str(m, "", "id"),
		Date:        str(m, "", "date"),
		Description: str(m, noMerchant, "merchant", "description"),
		Category:    str(m, noCategory, "bucket.name", "category", "bucket"),
		Account:     str(m, noAccount, "bankAccount.name", "account"),
		Amount:      num(m, "amount"),
	}
	switch k := core.TxKind(strings.ToUpper(str(m, "", "incomeOrExpense", "kind", "type"))); k {
	case core.Income, core.Expense, core.Transfer:
		t.Kind = k
	}
	if len(t.Date) > 10 {
		t.Date = t.Date[:10]
	}
	return t
}

func toPeriod(m map[string]any) budget.Period {
	id, _ := strconv.ParseInt(str(m, "0", "id", "periodId", "budgetPeriodId"), 10, 64)
	return budget.Period{
		ID:        id,
		StartDate: str(m, "", "startDate", "start_date"),
		EndDate:   str(m, "", "endDate", "end_date"),
	}
}

func toRule(m map[string]any, period budget.Period) budget.Rule {
	rt, err := budget.ParseRuleType(str(m, "", "ruleType", "valueType"))
	if err != nil {
		rt = budget.Fixed
	}
	rel, err := budget.ParseReleaseRule(str(m, "", "releaseRule", "release_rule"))
	if err != nil {
		rel = budget.NoPacing
	}
	month := str(m, "", "month")
	if !core.ValidMonthKey(month) {
		month = period.Month()
	}
	return budget.Rule{
		ID:       str(m, "", "id", "budgetId"),
		PeriodID: period.ID,
		Month:    month,
		Category: strings.TrimSpace(str(m, noCategory, "category", "name", "bucketName")),
		Type:     rt,
		Value:    num(m, "value", "planned"),
		Release:  rel,
	}
}

// idOf pulls the id out of a create response, which may be an object or
// a bare value.
func idOf(v any) string {
	if m, ok := v.(map[string]any); ok {
		return str(m, "", "id", "accountId", "bankAccountId", "bucketId", "budgetId")
	}
	return stringOf(v)
}
