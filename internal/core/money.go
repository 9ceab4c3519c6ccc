// Package core provides the expense domain types and amount/date formatting.
//
// This file contains helpers for parsing user-entered amounts and for the
// display rules applied to stored amounts and dates.
package core

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Currency is the display currency prefix used on every rendered amount.
const Currency = "PKR"

// ParseAmount converts a decimal string into a non-negative float64.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted. Empty
// input, signs other than a leading '+', NaN, infinities and negative values
// are rejected with ErrInvalidAmount. Zero is allowed.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,5")  -> 12.5, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "inf") || strings.Contains(lower, "nan") {
		return 0, ErrInvalidAmount
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, ErrInvalidAmount
	}
	return f, nil
}

// FormatAmount renders an amount with exactly two decimal places.
func FormatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// FormatMoney renders an amount with the currency prefix, e.g. "PKR 12.50".
func FormatMoney(f float64) string {
	return Currency + " " + FormatAmount(f)
}

// FormatRaw renders an amount in the shortest form that reads back to the same
// number, as a browser prints it: plain decimals ("100", "12.5") for magnitudes
// in [1e-6, 1e21) and exponent form otherwise ("1e-7", "1.5e+21").
func FormatRaw(f float64) string {
	if f == 0 {
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	mantissa, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	return mantissa + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0")
}

// FormatDisplayDate renders a stored date as dd/MM/yyyy. Unparseable values are
// returned unchanged.
func FormatDisplayDate(date string) string {
	t, err := ParseDate(date, time.UTC)
	if err != nil {
		return date
	}
	return t.Format("02/01/2006")
}
