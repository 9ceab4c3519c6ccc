package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saman/internal/amqp"
	"saman/internal/core"
	"saman/internal/kv/memory"
	"saman/internal/ledger"
)

type fakeMirror struct {
	mu    sync.Mutex
	calls [][]core.Expense
	err   error
}

func (f *fakeMirror) Mirror(_ context.Context, expenses []core.Expense, _ []core.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, expenses)
	return nil
}

func (f *fakeMirror) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeMirror) last() []core.Expense {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeMirror) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func addExpense(t *testing.T, l *ledger.Ledger, amount float64) {
	t.Helper()
	_, err := l.AddExpense(context.Background(), core.ExpenseInput{Date: "2024-03-15", Amount: amount, Category: "rent"})
	require.NoError(t, err)
}

func TestSyncSkipsUnchangedExport(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l, err := ledger.Open(ctx, store)
	require.NoError(t, err)
	mirror := &fakeMirror{}
	w := NewMirrorWorker(store, mirror, 0, nil)

	wrote, err := w.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, wrote, "first sync always writes")

	wrote, err = w.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, wrote)

	_, err = l.UpdateBudget(ctx, 1000)
	require.NoError(t, err)
	wrote, err = w.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, wrote, "budget is not part of the mirror")

	addExpense(t, l, 10)
	wrote, err = w.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Len(t, mirror.last(), 1)

	assert.Equal(t, Stats{Mirrored: 2, Skipped: 2}, w.Stats())
}

func TestSyncFailureIsRetriedOnNextSync(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	mirror := &fakeMirror{err: errors.New("quota exceeded")}
	w := NewMirrorWorker(store, mirror, 0, nil)

	_, err := w.Sync(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	mirror.setErr(nil)
	wrote, err := w.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, wrote, "failed writes do not count as mirrored")
	assert.EqualValues(t, 1, w.Stats().Failed)
}

func TestRunCoalescesBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.New()
	l, err := ledger.Open(ctx, store)
	require.NoError(t, err)
	mirror := &fakeMirror{}
	w := NewMirrorWorker(store, mirror, 50*time.Millisecond, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return mirror.count() == 1 }, time.Second, 5*time.Millisecond,
		"startup sync")

	for i := 1; i <= 3; i++ {
		addExpense(t, l, float64(i))
		require.NoError(t, w.HandleChange(ctx, &amqp.ChangeMessage{Kind: string(ledger.ChangeExpenseAdded), Revision: uint64(i)}))
	}

	require.Eventually(t, func() bool { return mirror.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, mirror.last(), 3, "one write carries the whole burst")

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 2, mirror.count())
	assert.EqualValues(t, 3, w.Stats().Received)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRunRetriesAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.New()
	mirror := &fakeMirror{err: errors.New("unavailable")}
	w := NewMirrorWorker(store, mirror, 0, nil)
	w.retryDelay = 20 * time.Millisecond

	go func() { _ = w.Run(ctx) }()

	require.Eventually(t, func() bool { return w.Stats().Failed >= 1 }, time.Second, 5*time.Millisecond)
	mirror.setErr(nil)
	require.Eventually(t, func() bool { return mirror.count() == 1 }, time.Second, 5*time.Millisecond)
}
