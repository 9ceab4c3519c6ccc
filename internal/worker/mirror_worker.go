// Package worker keeps the spreadsheet mirror in step with the persisted ledger.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"saman/internal/amqp"
	"saman/internal/core"
	"saman/internal/export"
	"saman/internal/kv"
	"saman/internal/ledger"
	"saman/internal/log"
)

// DefaultRetryDelay is how long a failed mirror waits before trying again.
const DefaultRetryDelay = 30 * time.Second

// Mirror rewrites an external copy of the expense export.
type Mirror interface {
	Mirror(ctx context.Context, expenses []core.Expense, categories []core.Category) error
}

// Stats counts what the worker has done since it started.
type Stats struct {
	Received int64
	Mirrored int64
	Skipped  int64
	Failed   int64
}

// MirrorWorker consumes ledger change messages and rewrites the mirror from a
// fresh snapshot of the store. Bursts of changes collapse into one write, and
// a snapshot whose export is unchanged since the last write is skipped.
type MirrorWorker struct {
	store      kv.Store
	mirror     Mirror
	debounce   time.Duration
	retryDelay time.Duration
	logger     *log.Logger

	trigger chan struct{}

	mu         sync.Mutex
	lastDigest string

	received atomic.Int64
	mirrored atomic.Int64
	skipped  atomic.Int64
	failed   atomic.Int64
}

func NewMirrorWorker(store kv.Store, mirror Mirror, debounce time.Duration, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &MirrorWorker{
		store:      store,
		mirror:     mirror,
		debounce:   debounce,
		retryDelay: DefaultRetryDelay,
		logger:     logger.WithComponent(log.ComponentWorker),
		trigger:    make(chan struct{}, 1),
	}
}

// HandleChange records that the ledger changed. It never blocks, so the
// delivery is acked straight away; the write happens in Run.
func (w *MirrorWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	w.received.Add(1)
	w.logger.DebugContext(ctx, "Change received",
		"kind", msg.Kind, log.FieldKey, msg.Key, log.FieldRevision, msg.Revision)
	w.poke()
	return nil
}

func (w *MirrorWorker) poke() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run mirrors once at startup, to recover from changes missed while the
// worker was down, then once per settled burst of changes until ctx is done.
func (w *MirrorWorker) Run(ctx context.Context) error {
	w.syncOrRetry(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.trigger:
		}
		if !w.settle(ctx) {
			return ctx.Err()
		}
		w.syncOrRetry(ctx)
	}
}

// settle waits until no change has arrived for the debounce period.
func (w *MirrorWorker) settle(ctx context.Context) bool {
	if w.debounce <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(w.debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-w.trigger:
			timer.Reset(w.debounce)
		case <-timer.C:
			return true
		}
	}
}

func (w *MirrorWorker) syncOrRetry(ctx context.Context) {
	if _, err := w.Sync(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.ErrorContext(ctx, "Mirror failed, will retry",
			log.FieldError, err, log.FieldOperation, log.OpMirror, "retry_in", w.retryDelay)
		time.AfterFunc(w.retryDelay, w.poke)
	}
}

// Sync reads the current snapshot and rewrites the mirror. It reports whether
// a write happened; an unchanged export is skipped.
func (w *MirrorWorker) Sync(ctx context.Context) (bool, error) {
	l, err := ledger.Open(ctx, w.store, ledger.WithLogger(w.logger))
	if err != nil {
		w.failed.Add(1)
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	snap := l.Snapshot()

	digest, err := digestOf(snap)
	if err != nil {
		w.failed.Add(1)
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if digest == w.lastDigest {
		w.skipped.Add(1)
		w.logger.DebugContext(ctx, "Mirror up to date", log.FieldCount, len(snap.Expenses))
		return false, nil
	}

	start := time.Now()
	if err := w.mirror.Mirror(ctx, snap.Expenses, snap.Categories); err != nil {
		w.failed.Add(1)
		return false, fmt.Errorf("mirror snapshot: %w", err)
	}
	w.lastDigest = digest
	w.mirrored.Add(1)

	w.logger.InfoContext(ctx, "Mirror updated",
		log.FieldCount, len(snap.Expenses),
		log.FieldOperation, log.OpMirror,
		log.FieldDuration, time.Since(start).Milliseconds())
	return true, nil
}

// Stats returns the current counters.
func (w *MirrorWorker) Stats() Stats {
	return Stats{
		Received: w.received.Load(),
		Mirrored: w.mirrored.Load(),
		Skipped:  w.skipped.Load(),
		Failed:   w.failed.Load(),
	}
}

// digestOf fingerprints exactly what the mirror would contain.
func digestOf(snap ledger.Snapshot) (string, error) {
	raw, err := json.Marshal(export.Rows(snap.Expenses, snap.Categories))
	if err != nil {
		return "", fmt.Errorf("fingerprint snapshot: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
