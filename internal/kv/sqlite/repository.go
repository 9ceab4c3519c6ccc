package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"saman/internal/kv"
	"saman/internal/log"

	_ "modernc.org/sqlite"
)

var (
	_ kv.Store   = (*Repository)(nil)
	_ kv.Updater = (*Repository)(nil)
)

// busyTimeout is how long a writer waits for another process holding the lock.
const busyTimeout = 5 * time.Second

const (
	loadQuery = `SELECT value FROM kv_entries WHERE key = ?`
	saveQuery = `INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
)

// Repository is a key-value store on a single SQLite table.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// SQLite allows a single writer; keep the pool small to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Load implements kv.Loader
func (r *Repository) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, kv.ErrEmptyKey
	}

	var value string
	err := r.db.QueryRowContext(ctx, loadQuery, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", key, err)
	}

	return []byte(value), true, nil
}

// Save implements kv.Saver
func (r *Repository) Save(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return kv.ErrEmptyKey
	}

	if _, err := r.db.ExecContext(ctx, saveQuery, key, string(value), time.Now().UTC()); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}

	slog.DebugContext(ctx, "Snapshot saved to SQLite",
		log.FieldComponent, log.ComponentStorage,
		log.FieldKey, key,
		"bytes", len(value))

	return nil
}

// Update implements kv.Updater. The read and the write run in one IMMEDIATE
// transaction, which takes the database write lock up front.
func (r *Repository) Update(ctx context.Context, key string, fn func([]byte, bool) ([]byte, error)) (err error) {
	if key == "" {
		return kv.ErrEmptyKey
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("begin update %s: %w", key, err)
	}
	defer func() {
		if err != nil {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	var (
		current string
		found   = true
	)
	switch scanErr := conn.QueryRowContext(ctx, loadQuery, key).Scan(&current); {
	case errors.Is(scanErr, sql.ErrNoRows):
		found = false
	case scanErr != nil:
		return fmt.Errorf("load %s: %w", key, scanErr)
	}

	var cur []byte
	if found {
		cur = []byte(current)
	}
	next, err := fn(cur, found)
	if err != nil {
		return err
	}

	if _, err = conn.ExecContext(ctx, saveQuery, key, string(next), time.Now().UTC()); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	if _, err = conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit update %s: %w", key, err)
	}

	slog.DebugContext(ctx, "Snapshot updated in SQLite",
		log.FieldComponent, log.ComponentStorage,
		log.FieldKey, key,
		"bytes", len(next))

	return nil
}
