// Package analytics derives display values from a snapshot of the ledger.
//
// Every function here is pure: it receives expenses, categories, budget and,
// where time matters, an explicit reference instant. Nothing reads a clock or
// touches storage.
package analytics

import (
	"time"

	"saman/internal/core"
)

// Filter returns the expenses that belong to the view selected by mode,
// relative to ref. The relative order of expenses is preserved.
//
// Daily keeps expenses on ref's calendar day in ref's location. Monthly keeps
// expenses whose month-of-year equals ref's month; the year is not compared, so
// March 2023 expenses show up in a March 2024 monthly view.
func Filter(expenses []core.Expense, mode core.ViewMode, ref time.Time) []core.Expense {
	var keep func(time.Time) bool
	switch mode {
	case core.Daily:
		y, m, d := ref.Date()
		keep = func(t time.Time) bool {
			ty, tm, td := t.Date()
			return ty == y && tm == m && td == d
		}
	case core.Monthly:
		m := ref.Month()
		keep = func(t time.Time) bool { return t.Month() == m }
	default:
		return nil
	}

	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		t, err := core.ParseDate(e.Date, ref.Location())
		if err != nil {
			continue
		}
		if keep(t) {
			out = append(out, e)
		}
	}
	return out
}

// Recent returns at most n expenses from the head of the list, which is the
// newest-first store order.
func Recent(expenses []core.Expense, n int) []core.Expense {
	if n < 0 {
		n = 0
	}
	if len(expenses) < n {
		n = len(expenses)
	}
	out := make([]core.Expense, n)
	copy(out, expenses[:n])
	return out
}
