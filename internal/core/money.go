// Package core provides the shared domain types and money handling.
//
// This file contains amount parsing, CAD formatting and percent helpers.
// Amounts are shopspring decimals; go-money is only used for display.
package core

import (
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount parses a user-entered positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rejects empty, malformed, zero and negative input with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount(" 2,5 ") -> 2.5, nil
//	ParseAmount("1,234.56") -> 1234.56, nil
//	ParseAmount("0")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(normalizeSeparators(s))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseSigned parses a signed amount such as a backend balance or an
// imported row. Blank input is zero.
func ParseSigned(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(normalizeSeparators(s))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// normalizeSeparators reads commas as thousands separators when a dot is
// present ("1,234.56") and as the decimal mark otherwise ("2,5").
func normalizeSeparators(s string) string {
	if strings.Contains(s, ".") {
		return strings.ReplaceAll(s, ",", "")
	}
	return strings.ReplaceAll(s, ",", ".")
}

// FormatCAD renders an amount the way en-CA renders CAD, e.g. "$1,963.68"
// and "-$500.00".
func FormatCAD(d decimal.Decimal) string {
	cents := d.Round(2).Shift(2).IntPart()
	return money.New(cents, money.CAD).Display()
}

// ClampPct bounds a percentage to [0, 100]. Non-finite input yields 0.
func ClampPct(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return math.Max(0, math.Min(100, x))
}

// Pct returns part/whole as a clamped percentage, or 0 when whole <= 0.
func Pct(part, whole decimal.Decimal) float64 {
	if !whole.IsPositive() {
		return 0
	}
	f, _ := part.Div(whole).Mul(hundred).Float64()
	return ClampPct(f)
}

// PercentOf returns base * pct / 100.
func PercentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}

// MaxZero returns d, or zero when d is negative.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
