package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saman/internal/core"
	"saman/internal/kv"
	"saman/internal/kv/memory"
	"saman/internal/kv/sqlite"
)

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func openTest(t *testing.T, store kv.Store, opts ...Option) *Ledger {
	t.Helper()
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(sequentialIDs()),
		WithColorGenerator(func() string { return "#123456" }),
	}
	l, err := Open(context.Background(), store, append(base, opts...)...)
	require.NoError(t, err)
	return l
}

// failingStore wraps a memory store and fails every Save once armed.
type failingStore struct {
	*memory.Store
	fail bool
}

func (f *failingStore) Save(ctx context.Context, key string, value []byte) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Store.Save(ctx, key, value)
}

// flakyLoader fails every Load once armed.
type flakyLoader struct {
	*memory.Store
	fail bool
}

func (f *flakyLoader) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if f.fail {
		return nil, false, errors.New("database is locked")
	}
	return f.Store.Load(ctx, key)
}

type brokenLoader struct{ memory.Store }

func (b *brokenLoader) Load(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func TestOpenDefaults(t *testing.T) {
	l := openTest(t, memory.New())

	assert.Empty(t, l.Expenses())
	assert.Equal(t, core.DefaultCategories(), l.Categories())
	assert.Equal(t, core.DefaultBudget(fixedNow), l.Budget())
	assert.Zero(t, l.Revision())
}

func TestOpenFallsBackOnCorruptData(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Save(ctx, kv.KeyExpenses, []byte("{not json")))
	require.NoError(t, store.Save(ctx, kv.KeyCategories, []byte("null")))
	require.NoError(t, store.Save(ctx, kv.KeyBudget, []byte(`{"amount":-5,"month":"2024-01"}`)))

	l := openTest(t, store)

	assert.Empty(t, l.Expenses())
	assert.Equal(t, core.DefaultCategories(), l.Categories())
	assert.Equal(t, "2024-03", l.Budget().Month)
}

func TestOpenReturnsTransportErrors(t *testing.T) {
	_, err := Open(context.Background(), &brokenLoader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAddExpensePrependsAndPersists(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := openTest(t, store)

	first, err := l.AddExpense(ctx, core.ExpenseInput{Date: "2024-03-01", Amount: 100, Category: "food", Description: "lunch"})
	require.NoError(t, err)
	second, err := l.AddExpense(ctx, core.ExpenseInput{Date: "2024-03-02", Amount: 40.5, Category: "transport"})
	require.NoError(t, err)

	assert.Equal(t, "id-1", first.ID)
	assert.Equal(t, "id-2", second.ID)
	assert.Equal(t, []string{"id-2", "id-1"}, ids(l.Expenses()))
	assert.Equal(t, uint64(2), l.Revision())

	raw, found, err := store.Load(ctx, kv.KeyExpenses)
	require.NoError(t, err)
	require.True(t, found)
	var persisted []core.Expense
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, l.Expenses(), persisted)

	// A fresh ledger over the same store sees the same state.
	reopened := openTest(t, store)
	assert.Equal(t, l.Expenses(), reopened.Expenses())
}

func TestAddExpenseValidation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := openTest(t, store)

	tests := []struct {
		name string
		in   core.ExpenseInput
		want error
	}{
		{"missing category", core.ExpenseInput{Date: "2024-03-01", Amount: 1}, core.ErrMissingCategory},
		{"bad date", core.ExpenseInput{Date: "yesterday", Amount: 1, Category: "food"}, core.ErrInvalidDate},
		{"negative amount", core.ExpenseInput{Date: "2024-03-01", Amount: -1, Category: "food"}, core.ErrInvalidAmount},
		{"nan amount", core.ExpenseInput{Date: "2024-03-01", Amount: math.NaN(), Category: "food"}, core.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.AddExpense(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, l.Expenses())
	assert.Zero(t, store.Saves())
}

func TestDeleteExpense(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := openTest(t, store)

	for _, d := range []string{"2024-03-01", "2024-03-02", "2024-03-03"} {
		_, err := l.AddExpense(ctx, core.ExpenseInput{Date: d, Amount: 10, Category: "food"})
		require.NoError(t, err)
	}
	savesBefore := store.Saves()

	deleted, err := l.DeleteExpense(ctx, "id-2")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []string{"id-3", "id-1"}, ids(l.Expenses()))
	assert.Equal(t, savesBefore+1, store.Saves())

	// Unknown and already-deleted ids are silent no-ops.
	for _, id := range []string{"id-2", "nope"} {
		deleted, err = l.DeleteExpense(ctx, id)
		require.NoError(t, err)
		assert.False(t, deleted)
	}
	assert.Equal(t, savesBefore+1, store.Saves())
	assert.Equal(t, uint64(4), l.Revision())
}

func TestAddThenDeleteRestoresPriorList(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := openTest(t, store)

	for _, d := range []string{"2024-03-01", "2024-03-02"} {
		_, err := l.AddExpense(ctx, core.ExpenseInput{Date: d, Amount: 12.5, Category: "food", Description: "market"})
		require.NoError(t, err)
	}
	before := l.Expenses()
	rawBefore, _, err := store.Load(ctx, kv.KeyExpenses)
	require.NoError(t, err)

	e, err := l.AddExpense(ctx, core.ExpenseInput{Date: "2024-03-03", Amount: 99, Category: "rent"})
	require.NoError(t, err)
	deleted, err := l.DeleteExpense(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	assert.Equal(t, before, l.Expenses())
	rawAfter, _, err := store.Load(ctx, kv.KeyExpenses)
	require.NoError(t, err)
	assert.JSONEq(t, string(rawBefore), string(rawAfter))
}

func TestLedgersSharingAStoreKeepEachOthersWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "saman.db")

	open := func() *Ledger {
		repo, err := sqlite.NewRepository(path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		l, err := Open(ctx, repo, WithClock(func() time.Time { return fixedNow }))
		require.NoError(t, err)
		return l
	}
	cli, server := open(), open()

	_, err := cli.AddExpense(ctx, core.ExpenseInput{Date: "2024-03-01", Amount: 10, Category: "food", Description: "from-cli"})
	require.NoError(t, err)
	_, err = server.AddExpense(ctx, core.ExpenseInput{Date: "2024-03-02", Amount: 20, Category: "food", Description: "from-http"})
	require.NoError(t, err)
	_, err = server.AddCategory(ctx, "Pets")
	require.NoError(t, err)
	_, err = cli.AddCategory(ctx, "Books")
	require.NoError(t, err)

	want := []string{"from-http", "from-cli"}
	assert.Equal(t, want, descriptions(server.Expenses()))

	reopened := open()
	assert.Equal(t, want, descriptions(reopened.Expenses()))
	cats := reopened.Categories()
	require.Len(t, cats, len(core.DefaultCategories())+2)
	assert.Equal(t, "Pets", cats[len(cats)-2].Name)
	assert.Equal(t, "Books", cats[len(cats)-1].Name)

	// A delete made elsewhere is not undone by the next local write.
	deleted, err := cli.DeleteExpense(ctx, server.Expenses()[0].ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = server.AddExpense(ctx, core.ExpenseInput{Date: "2024-03-03", Amount: 5, Category: "food", Description: "late"})
	require.NoError(t, err)
	assert.Equal(t, []string{"late", "from-cli"}, descriptions(open().Expenses()))
}

func TestLedgersSharingAMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a, b := openTest(t, store), openTest(t, store, WithIDGenerator(func() string { return "b-1" }))

	_, err := a.AddExpense(ctx, core.ExpenseInput{Date: "2024-03-01", Amount: 1, Category: "food"})
	require.NoError(t, err)
	_, err = b.AddExpense(ctx, core.ExpenseInput{Date: "2024-03-01", Amount: 2, Category: "food"})
	require.NoError(t, err)

	assert.Equal(t, []string{"b-1", "id-1"}, ids(openTest(t, store).Expenses()))
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	reader := openTest(t, store)
	writer := openTest(t, store)

	changed, err := reader.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Zero(t, reader.Revision())

	_, err = writer.AddExpense(ctx, core.ExpenseInput{Date: "2024-03-01", Amount: 7, Category: "food"})
	require.NoError(t, err)
	_, err = writer.UpdateBudget(ctx, 500)
	require.NoError(t, err)

	changed, err = reader.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, writer.Expenses(), reader.Expenses())
	assert.Equal(t, 500.0, reader.Budget().Amount)
	assert.Equal(t, uint64(1), reader.Revision())

	changed, err = reader.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, uint64(1), reader.Revision())
}

func TestRefreshReturnsTransportErrors(t *testing.T) {
	ctx := context.Background()
	store := &flakyLoader{Store: memory.New()}
	l := openTest(t, store)

	store.fail = true
	_, err := l.Refresh(ctx)
	assert.Error(t, err)
	assert.Empty(t, l.Expenses())
}

func TestAddCategory(t *testing.T) {
	ctx := context.Background()
	l := openTest(t, memory.New())

	c, err := l.AddCategory(ctx, "  Eating   Out ")
	require.NoError(t, err)
	assert.Equal(t, core.Category{ID: "eating-out", Name: "Eating   Out", Color: "#123456"}, c)

	cats := l.Categories()
	assert.Equal(t, c, cats[len(cats)-1])

	// Slug collisions are kept.
	_, err = l.AddCategory(ctx, "eating out")
	require.NoError(t, err)
	assert.Len(t, l.Categories(), len(core.DefaultCategories())+2)

	_, err = l.AddCategory(ctx, "   ")
	assert.ErrorIs(t, err, core.ErrEmptyCategoryName)
}

func TestUpdateBudget(t *testing.T) {
	ctx := context.Background()
	l := openTest(t, memory.New())

	b, err := l.UpdateBudget(ctx, 60000)
	require.NoError(t, err)
	assert.Equal(t, core.Budget{Amount: 60000, Month: "2024-03"}, b)

	for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
		prev, err := l.UpdateBudget(ctx, bad)
		assert.ErrorIs(t, err, core.ErrInvalidBudget)
		assert.Equal(t, b, prev)
	}
	assert.Equal(t, b, l.Budget())

	zero, err := l.UpdateBudget(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, zero.Amount)
}

func TestPersistFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: memory.New()}
	l := openTest(t, store)

	_, err := l.AddExpense(ctx, core.ExpenseInput{Date: "2024-03-01", Amount: 10, Category: "food"})
	require.NoError(t, err)
	before := l.Snapshot()

	store.fail = true
	_, err = l.AddExpense(ctx, core.ExpenseInput{Date: "2024-03-02", Amount: 20, Category: "food"})
	assert.Error(t, err)
	_, err = l.DeleteExpense(ctx, "id-1")
	assert.Error(t, err)
	_, err = l.AddCategory(ctx, "Pets")
	assert.Error(t, err)
	_, err = l.UpdateBudget(ctx, 1)
	assert.Error(t, err)

	assert.Equal(t, before, l.Snapshot())
}

func TestNotifierReceivesCommittedChanges(t *testing.T) {
	ctx := context.Background()
	var (
		mu      sync.Mutex
		changes []Change
	)
	n := NotifierFunc(func(_ context.Context, c Change) error {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c)
		return errors.New("broker down")
	})
	l := openTest(t, memory.New(), WithNotifier(n))

	e, err := l.AddExpense(ctx, core.ExpenseInput{Date: "2024-03-01", Amount: 10, Category: "food"})
	require.NoError(t, err, "notifier errors must not fail the mutation")
	_, err = l.UpdateBudget(ctx, 1000)
	require.NoError(t, err)
	_, err = l.DeleteExpense(ctx, "missing")
	require.NoError(t, err)

	require.Len(t, changes, 2)
	assert.Equal(t, Change{Kind: ChangeExpenseAdded, Key: kv.KeyExpenses, ID: e.ID, Revision: 1, At: fixedNow}, changes[0])
	assert.Equal(t, ChangeBudgetUpdated, changes[1].Kind)
	assert.Equal(t, "2024-03", changes[1].ID)
	assert.Equal(t, uint64(2), changes[1].Revision)
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	l := openTest(t, memory.New())
	_, err := l.AddExpense(ctx, core.ExpenseInput{Date: "2024-03-01", Amount: 10, Category: "food"})
	require.NoError(t, err)

	snap := l.Snapshot()
	snap.Expenses[0].Amount = 999
	snap.Categories[0].Name = "changed"

	assert.Equal(t, 10.0, l.Expenses()[0].Amount)
	assert.NotEqual(t, "changed", l.Categories()[0].Name)
}

func TestConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, memory.New())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.AddExpense(ctx, core.ExpenseInput{Date: "2024-03-01", Amount: 1, Category: "food"})
			_ = l.Snapshot()
		}()
	}
	wg.Wait()

	assert.Len(t, l.Expenses(), 20)
	assert.Equal(t, uint64(20), l.Revision())
}

func TestRandomColor(t *testing.T) {
	re := regexp.MustCompile(`^#[0-9a-f]{6}$`)
	for i := 0; i < 50; i++ {
		assert.Regexp(t, re, RandomColor())
	}
}

func ids(expenses []core.Expense) []string {
	out := make([]string, len(expenses))
	for i, e := range expenses {
		out[i] = e.ID
	}
	return out
}

func descriptions(expenses []core.Expense) []string {
	out := make([]string, len(expenses))
	for i, e := range expenses {
		out[i] = e.Description
	}
	return out
}
