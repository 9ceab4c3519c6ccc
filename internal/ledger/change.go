package ledger

import (
	"context"
	"time"
)

// ChangeKind names the mutation that produced a Change.
type ChangeKind string

const (
	ChangeExpenseAdded   ChangeKind = "expense.added"
	ChangeExpenseDeleted ChangeKind = "expense.deleted"
	ChangeCategoryAdded  ChangeKind = "category.added"
	ChangeBudgetUpdated  ChangeKind = "budget.updated"
)

// Change describes one committed mutation.
type Change struct {
	Kind     ChangeKind
	Key      string // kv key that was rewritten
	ID       string // expense id, category id or budget month
	Revision uint64
	At       time.Time
}

// Notifier receives committed changes. Errors are logged by the ledger and
// never undo the change.
type Notifier interface {
	Notify(ctx context.Context, c Change) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, c Change) error

func (f NotifierFunc) Notify(ctx context.Context, c Change) error {
	return f(ctx, c)
}
