package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saman/internal/kv"
)

func newTestRepo(t *testing.T) (*Repository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "saman.db")
	repo, err := NewRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo, path
}

func TestRepositoryLoadMissing(t *testing.T) {
	repo, _ := newTestRepo(t)

	v, found, err := repo.Load(context.Background(), kv.KeyExpenses)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, v)
}

func TestRepositorySaveOverwrites(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	require.NoError(t, repo.Save(ctx, kv.KeyBudget, []byte(`{"amount":1,"month":"2024-03"}`)))
	require.NoError(t, repo.Save(ctx, kv.KeyBudget, []byte(`{"amount":2,"month":"2024-04"}`)))

	v, found, err := repo.Load(ctx, kv.KeyBudget)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"amount":2,"month":"2024-04"}`, string(v))
}

func TestRepositoryPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestRepo(t)
	require.NoError(t, repo.Save(ctx, kv.KeyCategories, []byte(`[]`)))
	require.NoError(t, repo.Close())

	// Migrations must be idempotent on an existing database.
	reopened, err := NewRepository(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, found, err := reopened.Load(ctx, kv.KeyCategories)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "[]", string(v))
}

func TestRepositoryRejectsEmptyKey(t *testing.T) {
	repo, _ := newTestRepo(t)
	assert.ErrorIs(t, repo.Save(context.Background(), "", nil), kv.ErrEmptyKey)
	_, _, err := repo.Load(context.Background(), "")
	assert.ErrorIs(t, err, kv.ErrEmptyKey)
}

func TestRepositoryUpdate(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	appendItem := func(item string) func([]byte, bool) ([]byte, error) {
		return func(current []byte, found bool) ([]byte, error) {
			if !found {
				return []byte(`["` + item + `"]`), nil
			}
			return append(current[:len(current)-1], []byte(`,"`+item+`"]`)...), nil
		}
	}

	require.NoError(t, repo.Update(ctx, kv.KeyExpenses, appendItem("a")))
	require.NoError(t, repo.Update(ctx, kv.KeyExpenses, appendItem("b")))

	v, found, err := repo.Load(ctx, kv.KeyExpenses)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `["a","b"]`, string(v))
}

func TestRepositoryUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	require.NoError(t, repo.Save(ctx, kv.KeyBudget, []byte(`{"amount":1,"month":"2024-03"}`)))

	errStop := errors.New("stop")
	err := repo.Update(ctx, kv.KeyBudget, func([]byte, bool) ([]byte, error) {
		return nil, errStop
	})
	assert.ErrorIs(t, err, errStop)

	v, _, err := repo.Load(ctx, kv.KeyBudget)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":1,"month":"2024-03"}`, string(v))

	// The connection is usable again after the rollback.
	require.NoError(t, repo.Save(ctx, kv.KeyBudget, []byte(`{"amount":2,"month":"2024-03"}`)))
}

func TestRepositoryUpdateAcrossHandles(t *testing.T) {
	ctx := context.Background()
	first, path := newTestRepo(t)
	second, err := NewRepository(path)
	require.NoError(t, err)
	defer second.Close()

	add := func(repo *Repository, item string) {
		t.Helper()
		require.NoError(t, repo.Update(ctx, kv.KeyCategories, func(current []byte, found bool) ([]byte, error) {
			if !found {
				return []byte(`["` + item + `"]`), nil
			}
			return append(current[:len(current)-1], []byte(`,"`+item+`"]`)...), nil
		}))
	}
	add(first, "x")
	add(second, "y")
	add(first, "z")

	v, _, err := second.Load(ctx, kv.KeyCategories)
	require.NoError(t, err)
	assert.JSONEq(t, `["x","y","z"]`, string(v))
}

func TestRepositoryUpdateRejectsEmptyKey(t *testing.T) {
	repo, _ := newTestRepo(t)
	err := repo.Update(context.Background(), "", func([]byte, bool) ([]byte, error) { return nil, nil })
	assert.ErrorIs(t, err, kv.ErrEmptyKey)
}
