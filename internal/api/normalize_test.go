package api

import (
	"bytes"
	"testing"

	"budgetapp/internal/budget"
	"budgetapp/internal/core"

	"github.com/shopspring/decimal"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	v, err := decodeLoose(bytes.NewBufferString(raw))
	if err != nil {
		t.Fatalf("decodeLoose() error = %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want object", v)
	}
	return m
}

func TestToAccountAliases(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want core.Account
	}{
		{
			name: "canonical",
			raw:  `{"id":"1","name":"TD Chequing","creditOrDebit":"DEBIT","balance":1000.5}`,
			want: core.Account{ID: "1", Name: "TD Chequing", Kind: core.Debit, Balance: decimal.RequireFromString("1000.5"), Status: core.StatusActive},
		},
		{
			name: "aliases and string balance",
			raw:  `{"bankAccountId":7,"accountName":"Visa","credit_or_debit":"credit","balance":"-200.10","status":"archived"}`,
			want: core.Account{ID: "7", Name: "Visa", Kind: core.Credit, Balance: decimal.RequireFromString("-200.10"), Status: core.StatusArchived},
		},
		{
			name: "missing fields fall back",
			raw:  `{"accountId":"x","creditOrDebit":"SAVINGS","balance":"n/a"}`,
			want: core.Account{ID: "x", Name: "(Unnamed account)", Kind: core.Debit, Balance: decimal.Zero, Status: core.StatusActive},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toAccount(decode(t, tt.raw))
			if got.ID != tt.want.ID || got.Name != tt.want.Name || got.Kind != tt.want.Kind ||
				got.Status != tt.want.Status || !got.Balance.Equal(tt.want.Balance) {
				t.Errorf("toAccount() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestToBucketNestedAccount(t *testing.T) {
	b := toBucket(decode(t, `{"bucketId":3,"balance":"12","bankAccount":{"id":9,"name":"Savings"}}`))
	if b.ID != "3" || b.Name != "(Unnamed bucket)" || b.BankAccountID != "9" || b.BankAccountName != "Savings" {
		t.Errorf("toBucket() = %+v", b)
	}
}

func TestToTransaction(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		desc     string
		category string
		account  string
		date     string
		kind     core.TxKind
	}{
		{
			name:     "nested bucket and account",
			raw:      `{"id":1,"date":"2025-12-05T00:00:00Z","merchant":"Loblaws","bucket":{"name":"Groceries"},"bankAccount":{"name":"TD"},"amount":-84.22,"incomeOrExpense":"expense"}`,
			desc:     "Loblaws",
			category: "Groceries",
			account:  "TD",
			date:     "2025-12-05",
			kind:     core.Expense,
		},
		{
			name:     "flat fields",
			raw:      `{"id":"2","date":"2025-12-06","description":"Pay","category":"Income","account":"TD","amount":"2100"}`,
			desc:     "Pay",
			category: "Income",
			account:  "TD",
			date:     "2025-12-06",
		},
		{
			name:     "object bucket without name",
			raw:      `{"id":"3","date":"2025-12-07","bucket":{"id":4},"amount":-1}`,
			desc:     "(No merchant)",
			category: "(No category)",
			account:  "(No account)",
			date:     "2025-12-07",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toTransaction(decode(t, tt.raw))
			if got.Description != tt.desc || got.Category != tt.category || got.Account != tt.account ||
				got.Date != tt.date || got.Kind != tt.kind {
				t.Errorf("toTransaction() = %+v", got)
			}
		})
	}
}

func TestToRuleDefaults(t *testing.T) {
	p := budget.Period{ID: 4, StartDate: "2025-12-01"}
	r := toRule(decode(t, `{"id":5,"bucketName":" Rent ","value":"1500"}`), p)
	if r.ID != "5" || r.PeriodID != 4 || r.Month != "2025-12" || r.Category != "Rent" {
		t.Errorf("toRule() = %+v", r)
	}
	if r.Type != budget.Fixed || r.Release != budget.NoPacing {
		t.Errorf("defaults = %s/%s, want FIXED/NONE", r.Type, r.Release)
	}
	if !r.Value.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("value = %s", r.Value)
	}
}

func TestIDOf(t *testing.T) {
	if got := idOf(nil); got != "" {
		t.Errorf("idOf(nil) = %q", got)
	}
	if got := idOf("abc"); got != "abc" {
		t.Errorf("idOf(string) = %q", got)
	}
	if got := idOf(map[string]any{"bankAccountId": "12"}); got != "12" {
		t.Errorf("idOf(map) = %q", got)
	}
}

func TestDecodeLoosePlainText(t *testing.T) {
	v, err := decodeLoose(bytes.NewBufferString("  created  "))
	if err != nil || v != "created" {
		t.Errorf("decodeLoose() = %v, %v", v, err)
	}
	v, err = decodeLoose(bytes.NewBufferString(""))
	if err != nil || v != nil {
		t.Errorf("empty body = %v, %v", v, err)
	}
}
