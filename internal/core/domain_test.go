package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAccountKind(t *testing.T) {
	cases := []struct {
		in   string
		want AccountKind
		ok   bool
	}{
		{"DEBIT", Debit, true},
		{"credit", Credit, true},
		{"", Debit, true},
		{"savings", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAccountKind(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q: got %q err=%v", tc.in, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q: expected error", tc.in)
		}
	}
}

func TestTransactionKindOrSign(t *testing.T) {
	neg := Transaction{Amount: decimal.NewFromInt(-3)}
	pos := Transaction{Amount: decimal.NewFromInt(3)}
	tr := Transaction{Amount: decimal.NewFromInt(-3), Kind: Transfer}
	if neg.KindOrSign() != Expense || pos.KindOrSign() != Income || tr.KindOrSign() != Transfer {
		t.Fatal("unexpected kind derivation")
	}
}

func TestDates(t *testing.T) {
	if MonthKey("2025-12-27") != "2025-12" {
		t.Fatal("MonthKey")
	}
	if MonthKey("2025") != "2025" {
		t.Fatal("short MonthKey should be returned unchanged")
	}
	if MonthLabel("2025-12") != "Dec 2025" {
		t.Fatalf("MonthLabel = %q", MonthLabel("2025-12"))
	}
	if FormatDate("2025-12-05") != "Dec 5, 2025" {
		t.Fatalf("FormatDate = %q", FormatDate("2025-12-05"))
	}
	if !ValidMonthKey("2025-01") || ValidMonthKey("2025-13") || ValidMonthKey("25-01") {
		t.Fatal("ValidMonthKey")
	}
	if ValidateDate("") != ErrEmptyDate || ValidateDate("2025-02-30") != ErrInvalidDate || ValidateDate("2025-02-28") != nil {
		t.Fatal("ValidateDate")
	}
}
