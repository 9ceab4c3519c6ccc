package kv

import (
	"context"
	"errors"
)

// Logical keys under which the ledger persists its collections.
const (
	KeyExpenses   = "expenses"
	KeyCategories = "categories"
	KeyBudget     = "budget"
)

// ErrEmptyKey is returned when a store is asked for the empty key.
var ErrEmptyKey = errors.New("empty key")

// Ports for persistence adapters.
type (
	// Loader reads the raw snapshot stored under key. found is false when the key
	// has never been written.
	Loader interface {
		Load(ctx context.Context, key string) (value []byte, found bool, err error)
	}

	// Saver overwrites the snapshot stored under key.
	Saver interface {
		Save(ctx context.Context, key string, value []byte) error
	}

	Store interface {
		Loader
		Saver
	}

	// Updater is implemented by stores that can rewrite a key atomically, so
	// writers in different processes never overwrite each other's changes. fn
	// receives the current value and returns its replacement; an error from fn
	// leaves the stored value untouched and is returned unchanged.
	Updater interface {
		Update(ctx context.Context, key string, fn func(current []byte, found bool) ([]byte, error)) error
	}
)

// Keys lists every key the ledger uses, in load order.
func Keys() []string {
	return []string{KeyExpenses, KeyCategories, KeyBudget}
}
