package analytics

import (
	"sort"
	"time"

	"saman/internal/core"
)

// SeriesLength is the number of buckets kept for the spending chart.
const SeriesLength = 7

// weeksPerMonth turns the monthly budget into the flat reference line.
const weeksPerMonth = 4

// Bucket is one bar of the spending chart.
type Bucket struct {
	Date             string  `json:"date"`
	Label            string  `json:"label"`
	Spent            float64 `json:"spent"`
	WeeklyBudgetLine float64 `json:"weekly_budget_line"`
}

// WeeklySeries sums expenses per calendar day and returns the most recent
// SeriesLength days in ascending order.
//
// Despite the name the buckets are days, not weeks, and the budget line is a
// flat quarter of the monthly budget on every bucket. Expenses with an
// unparseable date are skipped.
func WeeklySeries(expenses []core.Expense, budget core.Budget) []Bucket {
	sums := make(map[string]float64)
	for _, e := range expenses {
		t, err := core.ParseDate(e.Date, time.UTC)
		if err != nil {
			continue
		}
		sums[t.Format(core.DateLayout)] += e.Amount
	}

	days := make([]string, 0, len(sums))
	for day := range sums {
		days = append(days, day)
	}
	sort.Strings(days)
	if len(days) > SeriesLength {
		days = days[len(days)-SeriesLength:]
	}

	line := budget.Amount / weeksPerMonth
	out := make([]Bucket, 0, len(days))
	for _, day := range days {
		out = append(out, Bucket{
			Date:             day,
			Label:            day[5:], // MM-DD
			Spent:            sums[day],
			WeeklyBudgetLine: line,
		})
	}
	return out
}
