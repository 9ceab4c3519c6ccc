package core

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	Daily   ViewMode = "daily"
	Monthly ViewMode = "monthly"
)

// Layouts used for persisted dates and the budget month stamp.
const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

type (
	// ViewMode selects which filter rule is applied to the expense list.
	ViewMode string

	Expense struct {
		ID          string  `json:"id"`
		Date        string  `json:"date"`
		Amount      float64 `json:"amount"`
		Category    string  `json:"category"` // Category.ID, may be orphaned
		Description string  `json:"description"`
	}

	Category struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Color string `json:"color"`
	}

	// Budget is the single active monthly ceiling. Month is "YYYY-MM".
	Budget struct {
		Amount float64 `json:"amount"`
		Month  string  `json:"month"`
	}

	// ExpenseInput is everything needed to create an Expense except its ID.
	ExpenseInput struct {
		Date        string  `json:"date" validate:"required,isodate"`
		Amount      float64 `json:"amount" validate:"gte=0"`
		Category    string  `json:"category" validate:"required"`
		Description string  `json:"description"`
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidBudget     = errors.New("invalid budget amount")
	ErrInvalidDate       = errors.New("invalid date")
	ErrMissingCategory   = errors.New("missing category")
	ErrEmptyCategoryName = errors.New("empty category name")
	ErrInvalidViewMode   = errors.New("invalid view mode")
)

var whitespaceRun = regexp.MustCompile(`\s+`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := ParseDate(fl.Field().String(), time.UTC)
		return err == nil
	})
	return v
}

// DefaultCategories returns the categories present on first run.
func DefaultCategories() []Category {
	return []Category{
		{ID: "groceries", Name: "Groceries", Color: "#FF6B6B"},
		{ID: "utilities", Name: "Utilities", Color: "#4ECDC4"},
		{ID: "rent", Name: "Rent", Color: "#45B7D1"},
		{ID: "entertainment", Name: "Entertainment", Color: "#96CEB4"},
		{ID: "transport", Name: "Transport", Color: "#FFBE0B"},
	}
}

// DefaultBudget is the zero budget stamped with the month of now.
func DefaultBudget(now time.Time) Budget {
	return Budget{Amount: 0, Month: now.Format(MonthLayout)}
}

// Slugify lowercases name and replaces each whitespace run with a single hyphen.
// Distinct names may produce the same slug; callers do not deduplicate.
func Slugify(name string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(name), "-")
}

// ParseViewMode accepts "daily" or "monthly".
func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(strings.ToLower(strings.TrimSpace(s))) {
	case Daily:
		return Daily, nil
	case Monthly:
		return Monthly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidViewMode, s)
	}
}

func (m ViewMode) String() string {
	return string(m)
}

// ParseDate interprets s as a calendar day and returns midnight of that day in loc.
// A bare "YYYY-MM-DD" is taken literally; RFC 3339 timestamps are converted into loc first.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		t = t.In(loc)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// Validate checks the input before an Expense is constructed from it.
func (in ExpenseInput) Validate() error {
	if strings.TrimSpace(in.Category) == "" {
		return ErrMissingCategory
	}
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) {
		return ErrInvalidAmount
	}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			switch verrs[0].Field() {
			case "Date":
				return fmt.Errorf("%w: %q", ErrInvalidDate, in.Date)
			case "Amount":
				return ErrInvalidAmount
			case "Category":
				return ErrMissingCategory
			}
		}
		return fmt.Errorf("validate expense: %w", err)
	}
	return nil
}

// ValidateBudgetAmount rejects anything that is not a finite, non-negative number.
func ValidateBudgetAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return ErrInvalidBudget
	}
	return nil
}
