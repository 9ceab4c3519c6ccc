package analytics

import (
	"sort"

	"saman/internal/core"
)

// averageDailyDivisor is fixed; it is not the number of days in the month.
const averageDailyDivisor = 30

// Budget status thresholds, as percentages of the budget spent.
const (
	warningThreshold = 80
	overThreshold    = 100
)

// Status classifies how much of the budget has been used.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusOver    Status = "over"
)

// UnknownCategoryColor is used for slices whose category has no colour.
const UnknownCategoryColor = "#000000"

// CategoryTotal is one accumulated category sum.
type CategoryTotal struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// CategoryTotals maps category ids to sums, remembering first-encounter order.
type CategoryTotals struct {
	order []string
	sums  map[string]float64
}

// Highest is the category with the largest sum.
type Highest struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// Slice is one entry of the category breakdown chart.
type Slice struct {
	Name    string  `json:"name"`
	Amount  float64 `json:"amount"`
	Color   string  `json:"color"`
	Percent float64 `json:"percent"`
}

// Summary bundles the figures shown on the summary cards and budget panel.
type Summary struct {
	TotalSpent      float64 `json:"total_spent"`
	AverageDaily    float64 `json:"average_daily"`
	Remaining       float64 `json:"remaining"`
	PercentageSpent float64 `json:"percentage_spent"`
	PercentageLeft  float64 `json:"percentage_left"`
	Highest         Highest `json:"highest"`
	HighestName     string  `json:"highest_name"`
	Status          Status  `json:"status"`
	Budget          float64 `json:"budget"`
	Count           int     `json:"count"`
}

func TotalSpent(expenses []core.Expense) float64 {
	var total float64
	for _, e := range expenses {
		total += e.Amount
	}
	return total
}

func AverageDaily(total float64) float64 {
	return total / averageDailyDivisor
}

// Remaining may be negative when the budget is exceeded.
func Remaining(budget core.Budget, total float64) float64 {
	return budget.Amount - total
}

// PercentageSpent is total as a percentage of the budget, or 0 for a zero budget.
func PercentageSpent(budget core.Budget, total float64) float64 {
	if budget.Amount == 0 {
		return 0
	}
	return total / budget.Amount * 100
}

// PercentageLeft is the remaining amount as a percentage of the budget, or 0 for
// a zero budget.
func PercentageLeft(budget core.Budget, total float64) float64 {
	if budget.Amount == 0 {
		return 0
	}
	return Remaining(budget, total) / budget.Amount * 100
}

// BudgetStatus maps a spent percentage onto ok / warning / over.
func BudgetStatus(percentageSpent float64) Status {
	switch {
	case percentageSpent > overThreshold:
		return StatusOver
	case percentageSpent > warningThreshold:
		return StatusWarning
	default:
		return StatusOK
	}
}

// PerCategoryTotals sums amounts per category id. Only ids with at least one
// expense are present.
func PerCategoryTotals(expenses []core.Expense) CategoryTotals {
	ct := CategoryTotals{sums: make(map[string]float64)}
	for _, e := range expenses {
		if _, ok := ct.sums[e.Category]; !ok {
			ct.order = append(ct.order, e.Category)
		}
		ct.sums[e.Category] += e.Amount
	}
	return ct
}

// Get returns the sum for id and whether id has any expense.
func (ct CategoryTotals) Get(id string) (float64, bool) {
	v, ok := ct.sums[id]
	return v, ok
}

func (ct CategoryTotals) Len() int {
	return len(ct.order)
}

// Entries returns the totals in first-encounter order.
func (ct CategoryTotals) Entries() []CategoryTotal {
	out := make([]CategoryTotal, 0, len(ct.order))
	for _, id := range ct.order {
		out = append(out, CategoryTotal{Category: id, Amount: ct.sums[id]})
	}
	return out
}

// Sum adds the totals back up in iteration order.
func (ct CategoryTotals) Sum() float64 {
	var s float64
	for _, id := range ct.order {
		s += ct.sums[id]
	}
	return s
}

// HighestCategory picks the largest total. Ties keep the first encountered
// category; empty input yields {"", 0}.
func HighestCategory(ct CategoryTotals) Highest {
	best := Highest{}
	for _, id := range ct.order {
		if amount := ct.sums[id]; amount > best.Amount {
			best = Highest{Category: id, Amount: amount}
		}
	}
	return best
}

// CategoryName resolves an id to its display name. Orphaned ids are returned
// as-is so they still render.
func CategoryName(categories []core.Category, id string) string {
	if c, ok := findCategory(categories, id); ok && c.Name != "" {
		return c.Name
	}
	return id
}

func findCategory(categories []core.Category, id string) (core.Category, bool) {
	for _, c := range categories {
		if c.ID == id {
			return c, true
		}
	}
	return core.Category{}, false
}

// Summarize computes the summary card figures for an already filtered set.
func Summarize(expenses []core.Expense, categories []core.Category, budget core.Budget) Summary {
	total := TotalSpent(expenses)
	highest := HighestCategory(PerCategoryTotals(expenses))
	spent := PercentageSpent(budget, total)
	return Summary{
		TotalSpent:      total,
		AverageDaily:    AverageDaily(total),
		Remaining:       Remaining(budget, total),
		PercentageSpent: spent,
		PercentageLeft:  PercentageLeft(budget, total),
		Highest:         highest,
		HighestName:     CategoryName(categories, highest.Category),
		Status:          BudgetStatus(spent),
		Budget:          budget.Amount,
		Count:           len(expenses),
	}
}

// Breakdown groups expenses by category name for the spending chart. Expenses
// whose category no longer exists are left out. Slices are ordered by amount,
// largest first.
func Breakdown(expenses []core.Expense, categories []core.Category) []Slice {
	var (
		order []string
		sums  = make(map[string]float64)
		total float64
	)
	for _, e := range expenses {
		c, ok := findCategory(categories, e.Category)
		if !ok {
			continue
		}
		if _, seen := sums[c.Name]; !seen {
			order = append(order, c.Name)
		}
		sums[c.Name] += e.Amount
		total += e.Amount
	}

	out := make([]Slice, 0, len(order))
	for _, name := range order {
		color := UnknownCategoryColor
		for _, c := range categories {
			if c.Name == name && c.Color != "" {
				color = c.Color
				break
			}
		}
		var pct float64
		if total > 0 {
			pct = sums[name] / total * 100
		}
		out = append(out, Slice{Name: name, Amount: sums[name], Color: color, Percent: pct})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount > out[j].Amount })
	return out
}
