package backend

import (
	"context"

	"saman/internal/kv"
	"saman/internal/ledger"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult is the storage port plus the optional change notifier.
type BackendResult struct {
	Store    kv.Store
	Notifier ledger.Notifier // nil when AMQP is disabled or unreachable
	Cleanup  CleanupFunc
}

// Close runs Cleanup when one is set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// LedgerOptions returns the ledger options implied by the backend.
func (r *BackendResult) LedgerOptions() []ledger.Option {
	if r.Notifier == nil {
		return nil
	}
	return []ledger.Option{ledger.WithNotifier(r.Notifier)}
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific; empty means start from defaults
	DataDirectory string

	// Change notifications, optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
