package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"saman/internal/kv"
)

var _ kv.Store = (*Store)(nil)

type Store struct {
	mu     sync.Mutex
	values map[string][]byte
	saves  int
}

func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

// NewFromFiles seeds the store from <base>/<key>.json for every ledger key that
// has a file. Missing or empty files leave the key unset so the ledger falls
// back to its defaults.
func NewFromFiles(base string) *Store {
	s := New()
	for _, key := range kv.Keys() {
		if v := readFile(filepath.Join(base, key+".json")); v != nil {
			s.values[key] = v
		}
	}
	return s
}

// Load returns a copy of the value stored under key.
func (s *Store) Load(_ context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, kv.ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Save stores a copy of value under key.
func (s *Store) Save(_ context.Context, key string, value []byte) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	s.saves++
	return nil
}

// Saves reports how many writes the store has accepted.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func readFile(path string) []byte {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if strings.TrimSpace(string(b)) == "" {
		return nil
	}
	return b
}
