package analytics

import (
	"time"

	"saman/internal/core"
)

// Dashboard is everything one view of the app displays. Summary, chart and
// table all derive from the same filtered set; the budget line uses the full
// budget.
type Dashboard struct {
	View      core.ViewMode  `json:"view"`
	Date      string         `json:"date"`
	Summary   Summary        `json:"summary"`
	Breakdown []Slice        `json:"breakdown"`
	Series    []Bucket       `json:"series"`
	Expenses  []core.Expense `json:"expenses"`
}

// BuildDashboard filters expenses for mode at ref and derives every display value.
func BuildDashboard(expenses []core.Expense, categories []core.Category, budget core.Budget, mode core.ViewMode, ref time.Time) Dashboard {
	filtered := Filter(expenses, mode, ref)
	return Dashboard{
		View:      mode,
		Date:      ref.Format(core.DateLayout),
		Summary:   Summarize(filtered, categories, budget),
		Breakdown: Breakdown(filtered, categories),
		Series:    WeeklySeries(filtered, budget),
		Expenses:  filtered,
	}
}
