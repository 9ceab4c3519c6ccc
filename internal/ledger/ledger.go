// Package ledger is the record store: the single owner of expenses, categories
// and the active budget.
//
// Every mutation rereads the affected key, stages the new collection, persists it
// through a kv.Store and commits it in memory only once the save succeeded. Other
// processes sharing the store therefore never lose their writes. Readers receive
// copies, so derivations never observe a half-applied change.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"saman/internal/core"
	"saman/internal/kv"
	"saman/internal/log"
)

// maxColor is the exclusive upper bound of generated colours (0xFFFFFF).
const maxColor = 16777215

// Snapshot is an immutable copy of the ledger at one revision.
type Snapshot struct {
	Expenses   []core.Expense  `json:"expenses"`
	Categories []core.Category `json:"categories"`
	Budget     core.Budget     `json:"budget"`
	Revision   uint64          `json:"revision"`
}

// Ledger holds the in-memory state and writes through to a kv.Store.
type Ledger struct {
	mu         sync.RWMutex
	store      kv.Store
	expenses   []core.Expense
	categories []core.Category
	budget     core.Budget
	revision   uint64

	now      func() time.Time
	newID    func() string
	newColor func() string
	notifier Notifier
	logger   *log.Logger
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now, used for default and updated budget months.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator replaces the UUID generator used for new expenses.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newID = gen }
}

// WithColorGenerator replaces the random colour generator for new categories.
func WithColorGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newColor = gen }
}

// WithNotifier registers a receiver for committed changes.
func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// Open loads the three collections from store. Keys that are absent or hold
// unparsable data fall back to their defaults; only transport errors from the
// store are returned.
func Open(ctx context.Context, store kv.Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:    store,
		now:      time.Now,
		newID:    uuid.NewString,
		newColor: RandomColor,
		logger:   log.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithComponent(log.ComponentLedger)

	var err error
	if l.expenses, err = loadKey(ctx, l, kv.KeyExpenses, []core.Expense{}); err != nil {
		return nil, err
	}
	if l.categories, err = loadKey(ctx, l, kv.KeyCategories, core.DefaultCategories()); err != nil {
		return nil, err
	}
	if l.budget, err = loadKey(ctx, l, kv.KeyBudget, core.DefaultBudget(l.now())); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Ledger loaded",
		log.FieldCount, len(l.expenses),
		"categories", len(l.categories),
		"budget_month", l.budget.Month)

	return l, nil
}

// errUnchanged aborts a rewrite that would not alter the stored value.
var errUnchanged = errors.New("unchanged")

func loadKey[T any](ctx context.Context, l *Ledger, key string, fallback T) (T, error) {
	raw, found, err := l.store.Load(ctx, key)
	if err != nil {
		return fallback, fmt.Errorf("load %s: %w", key, err)
	}
	return decodeKey(ctx, l, key, raw, found, fallback), nil
}

func decodeKey[T any](ctx context.Context, l *Ledger, key string, raw []byte, found bool, fallback T) T {
	if !found {
		return fallback
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		l.logger.WarnContext(ctx, "Discarding unparsable snapshot",
			log.NewFields().
				WithKey(key, 0).
				WithError(err).
				WithErrorType(log.ErrorTypeCorrupt).
				WithOperation(log.OpLoad).
				ToSlice()...)
		return fallback
	}
	if !validSnapshot(v) {
		l.logger.WarnContext(ctx, "Discarding snapshot with unexpected shape",
			log.FieldKey, key, log.FieldErrorType, log.ErrorTypeCorrupt)
		return fallback
	}
	return v
}

// rewrite must be called with l.mu held. It applies modify to the value
// currently stored under key, falling back to current when the key is absent
// or unreadable, and saves the result. Stores implementing kv.Updater do this
// atomically. When modify returns errUnchanged nothing is saved and the stored
// value is returned with errUnchanged.
func rewrite[T any](ctx context.Context, l *Ledger, key string, current T, modify func(T) (T, error)) (T, error) {
	var out T
	apply := func(raw []byte, found bool) ([]byte, error) {
		stored := decodeKey(ctx, l, key, raw, found, current)
		next, err := modify(stored)
		if errors.Is(err, errUnchanged) {
			out = stored
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		out = next
		return encoded, nil
	}

	var err error
	if u, ok := l.store.(kv.Updater); ok {
		err = u.Update(ctx, key, apply)
	} else {
		err = loadAndSave(ctx, l.store, key, apply)
	}
	if errors.Is(err, errUnchanged) {
		return out, errUnchanged
	}
	if err != nil {
		l.logger.ErrorContext(ctx, "Persist failed",
			log.NewFields().WithKey(key, l.revision).WithError(err).WithOperation(log.OpPersist).ToSlice()...)
		return out, fmt.Errorf("save %s: %w", key, err)
	}
	return out, nil
}

func loadAndSave(ctx context.Context, store kv.Store, key string, apply func([]byte, bool) ([]byte, error)) error {
	raw, found, err := store.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	next, err := apply(raw, found)
	if err != nil {
		return err
	}
	return store.Save(ctx, key, next)
}

// validSnapshot rejects JSON that decodes but is not the collection it should be,
// e.g. "null" for the expense list.
func validSnapshot(v any) bool {
	switch s := v.(type) {
	case []core.Expense:
		return s != nil
	case []core.Category:
		return s != nil
	case core.Budget:
		return s.Month != "" && core.ValidateBudgetAmount(s.Amount) == nil
	}
	return true
}

// Expenses returns a copy of the expense list, newest first.
func (l *Ledger) Expenses() []core.Expense {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]core.Expense(nil), l.expenses...)
}

// Categories returns a copy of the categories in creation order.
func (l *Ledger) Categories() []core.Category {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]core.Category(nil), l.categories...)
}

func (l *Ledger) Budget() core.Budget {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.budget
}

// Revision increases by one on every committed mutation.
func (l *Ledger) Revision() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.revision
}

// Snapshot copies all three collections at a single revision.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		Expenses:   append([]core.Expense(nil), l.expenses...),
		Categories: append([]core.Category(nil), l.categories...),
		Budget:     l.budget,
		Revision:   l.revision,
	}
}

// AddExpense validates in, assigns a fresh id and prepends the new expense.
func (l *Ledger) AddExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	if err := in.Validate(); err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		ID:          l.newID(),
		Date:        strings.TrimSpace(in.Date),
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
	}

	l.mu.Lock()
	next, err := rewrite(ctx, l, kv.KeyExpenses, l.expenses, func(stored []core.Expense) ([]core.Expense, error) {
		out := make([]core.Expense, 0, len(stored)+1)
		out = append(out, e)
		return append(out, stored...), nil
	})
	if err != nil {
		l.mu.Unlock()
		return core.Expense{}, err
	}
	l.expenses = next
	change := l.commit(ChangeExpenseAdded, kv.KeyExpenses, e.ID)
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "Expense added",
		log.NewFields().WithExpense(e.ID, e.Date, e.Amount, e.Category).WithOperation(log.OpCreate).ToSlice()...)
	l.notify(ctx, change)
	return e, nil
}

// DeleteExpense removes the expense with id. A missing id is not an error and
// leaves the store untouched; deleted reports whether anything was removed.
func (l *Ledger) DeleteExpense(ctx context.Context, id string) (deleted bool, err error) {
	l.mu.Lock()
	next, err := rewrite(ctx, l, kv.KeyExpenses, l.expenses, func(stored []core.Expense) ([]core.Expense, error) {
		idx := slices.IndexFunc(stored, func(e core.Expense) bool { return e.ID == id })
		if idx < 0 {
			return nil, errUnchanged
		}
		out := make([]core.Expense, 0, len(stored)-1)
		out = append(out, stored[:idx]...)
		return append(out, stored[idx+1:]...), nil
	})
	if errors.Is(err, errUnchanged) {
		l.adopt(next, l.categories, l.budget)
		l.mu.Unlock()
		l.logger.DebugContext(ctx, "Delete of unknown expense ignored", log.FieldExpenseID, id)
		return false, nil
	}
	if err != nil {
		l.mu.Unlock()
		return false, err
	}
	l.expenses = next
	change := l.commit(ChangeExpenseDeleted, kv.KeyExpenses, id)
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "Expense deleted", log.FieldExpenseID, id, log.FieldOperation, log.OpDelete)
	l.notify(ctx, change)
	return true, nil
}

// AddCategory appends a category whose id is the slug of name. Slug collisions
// are kept as separate entries.
func (l *Ledger) AddCategory(ctx context.Context, name string) (core.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, core.ErrEmptyCategoryName
	}
	c := core.Category{
		ID:    core.Slugify(name),
		Name:  name,
		Color: l.newColor(),
	}

	l.mu.Lock()
	next, err := rewrite(ctx, l, kv.KeyCategories, l.categories, func(stored []core.Category) ([]core.Category, error) {
		out := make([]core.Category, 0, len(stored)+1)
		out = append(out, stored...)
		return append(out, c), nil
	})
	if err != nil {
		l.mu.Unlock()
		return core.Category{}, err
	}
	l.categories = next
	change := l.commit(ChangeCategoryAdded, kv.KeyCategories, c.ID)
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "Category added", log.FieldCategoryID, c.ID, "name", c.Name)
	l.notify(ctx, change)
	return c, nil
}

// UpdateBudget replaces the budget with amount stamped with the current month.
// NaN, infinities and negative amounts are rejected with core.ErrInvalidBudget
// and the previous budget is kept.
func (l *Ledger) UpdateBudget(ctx context.Context, amount float64) (core.Budget, error) {
	if err := core.ValidateBudgetAmount(amount); err != nil {
		l.logger.WarnContext(ctx, "Budget update rejected", log.FieldAmount, amount,
			log.FieldErrorType, log.ErrorTypeValidation)
		return l.Budget(), err
	}
	b := core.Budget{Amount: amount, Month: l.now().Format(core.MonthLayout)}

	l.mu.Lock()
	if err := l.persist(ctx, kv.KeyBudget, b); err != nil {
		l.mu.Unlock()
		return core.Budget{}, err
	}
	l.budget = b
	change := l.commit(ChangeBudgetUpdated, kv.KeyBudget, b.Month)
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "Budget updated", log.FieldAmount, b.Amount, "month", b.Month)
	l.notify(ctx, change)
	return b, nil
}

// persist must be called with l.mu held.
func (l *Ledger) persist(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := l.store.Save(ctx, key, raw); err != nil {
		l.logger.ErrorContext(ctx, "Persist failed",
			log.NewFields().WithKey(key, l.revision).WithError(err).WithOperation(log.OpPersist).ToSlice()...)
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Refresh reloads all three collections from the store, picking up writes made
// by other processes sharing it. changed reports whether anything differed; the
// revision only moves when it did.
func (l *Ledger) Refresh(ctx context.Context) (changed bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	expenses, err := loadKey(ctx, l, kv.KeyExpenses, l.expenses)
	if err != nil {
		return false, err
	}
	categories, err := loadKey(ctx, l, kv.KeyCategories, l.categories)
	if err != nil {
		return false, err
	}
	budget, err := loadKey(ctx, l, kv.KeyBudget, l.budget)
	if err != nil {
		return false, err
	}
	changed = l.adopt(expenses, categories, budget)
	if changed {
		l.logger.DebugContext(ctx, "Ledger refreshed from store",
			log.FieldRevision, l.revision, log.FieldOperation, log.OpRead)
	}
	return changed, nil
}

// adopt must be called with l.mu held. It replaces the in-memory state with
// values read from the store and bumps the revision if they differ.
func (l *Ledger) adopt(expenses []core.Expense, categories []core.Category, budget core.Budget) bool {
	if slices.Equal(expenses, l.expenses) && slices.Equal(categories, l.categories) && budget == l.budget {
		return false
	}
	l.expenses, l.categories, l.budget = expenses, categories, budget
	l.revision++
	return true
}

// commit must be called with l.mu held.
func (l *Ledger) commit(kind ChangeKind, key, id string) Change {
	l.revision++
	return Change{Kind: kind, Key: key, ID: id, Revision: l.revision, At: l.now()}
}

func (l *Ledger) notify(ctx context.Context, c Change) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.Notify(ctx, c); err != nil {
		// The change is already persisted; subscribers catch up on the next one.
		l.logger.ErrorContext(ctx, "Change notification failed",
			log.NewFields().WithKey(c.Key, c.Revision).WithError(err).WithOperation(log.OpNotify).ToSlice()...)
	}
}

// RandomColor returns a pseudo-random "#rrggbb" colour.
func RandomColor() string {
	n, err := rand.Int(rand.Reader, big.NewInt(maxColor))
	if err != nil {
		return fmt.Sprintf("#%06x", time.Now().UnixNano()%maxColor)
	}
	return fmt.Sprintf("#%06x", n.Int64())
}
