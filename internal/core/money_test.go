package core

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{" 2.50 ", "2.5", true},
		{"1,234.56", "1234.56", true},
		{"12,345,678.9", "12345678.9", true},
		{"0.01", "0.01", true},
		{"-1", "", false},
		{"0", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseSigned(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"", "0", true},
		{"-250", "-250", true},
		{"-1,234.56", "-1234.56", true},
		{"2,5", "2.5", true},
		{"0", "0", true},
		{"1,2.3.4", "", false},
		{"x", "", false},
	}
	for _, tc := range cases {
		got, err := ParseSigned(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestFormatCAD(t *testing.T) {
	cases := map[string]string{
		"500":     "$500.00",
		"-500":    "-$500.00",
		"1963.68": "$1,963.68",
		"0":       "$0.00",
		"136.32":  "$136.32",
		"0.005":   "$0.01",
		"-84.22":  "-$84.22",
	}
	for in, want := range cases {
		if got := FormatCAD(decimal.RequireFromString(in)); got != want {
			t.Errorf("FormatCAD(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestClampPct(t *testing.T) {
	inputs := []float64{-5, 0, 42.5, 100, 250, math.NaN(), math.Inf(1), math.Inf(-1)}
	for _, x := range inputs {
		got := ClampPct(x)
		if got < 0 || got > 100 {
			t.Fatalf("ClampPct(%v) = %v out of range", x, got)
		}
		if again := ClampPct(got); again != got {
			t.Fatalf("ClampPct not idempotent for %v: %v then %v", x, got, again)
		}
	}
	if ClampPct(math.NaN()) != 0 || ClampPct(math.Inf(1)) != 0 {
		t.Fatal("non-finite input must clamp to 0")
	}
	if ClampPct(250) != 100 || ClampPct(-1) != 0 || ClampPct(42.5) != 42.5 {
		t.Fatal("unexpected clamp result")
	}
}

func TestPct(t *testing.T) {
	if got := Pct(decimal.NewFromInt(50), decimal.NewFromInt(200)); got != 25 {
		t.Fatalf("Pct = %v, want 25", got)
	}
	if got := Pct(decimal.NewFromInt(50), decimal.Zero); got != 0 {
		t.Fatalf("Pct with zero whole = %v, want 0", got)
	}
	if got := Pct(decimal.NewFromInt(500), decimal.NewFromInt(200)); got != 100 {
		t.Fatalf("Pct over = %v, want 100", got)
	}
}
