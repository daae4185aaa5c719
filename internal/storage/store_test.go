package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pid-editor/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories lets the same contract run against every local backend.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"duckdb": func() Store {
			db, err := OpenDuckDB(filepath.Join(t.TempDir(), "pid.duckdb"), DuckOptions{Threads: 1})
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			s, err := db.Table(context.Background(), "items")
			require.NoError(t, err)
			return s
		},
	}
}

func TestStoreContract(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()

			list, err := s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)

			a, err := s.Create(ctx, map[string]any{"Name": "Pump A", "Unit": "1", "Sequence": 3})
			require.NoError(t, err)
			assert.NotEmpty(t, a.ID)
			assert.NotEmpty(t, a.CreatedTime)

			b, err := s.Create(ctx, map[string]any{"Name": "Valve B", "Connections": []string{"Pump A"}})
			require.NoError(t, err)

			list, err = s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, a.ID, list[0].ID)
			assert.Equal(t, b.ID, list[1].ID)

			got, err := s.Get(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, "Pump A", got.Fields["Name"])

			updated, err := s.Update(ctx, a.ID, map[string]any{"x": 12.5, "Unit": nil})
			require.NoError(t, err)
			assert.Equal(t, "Pump A", updated.Fields["Name"])
			assert.NotContains(t, updated.Fields, "Unit")
			assert.Contains(t, updated.Fields, "x")

			require.NoError(t, s.Delete(ctx, b.ID))
			_, err = s.Get(ctx, b.ID)
			assert.True(t, errors.Is(err, ErrNotFound))

			_, err = s.Update(ctx, "missing", map[string]any{"Name": "x"})
			assert.True(t, errors.Is(err, ErrNotFound))
			assert.True(t, errors.Is(s.Delete(ctx, "missing"), ErrNotFound))
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec, err := s.Create(ctx, map[string]any{"Name": "Pump"})
	require.NoError(t, err)

	rec.Fields["Name"] = "Changed"
	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pump", got.Fields["Name"])
}

func TestMemoryStore_Seed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Seed(
		models.NewRecord("rec1", map[string]any{"Name": "A"}),
		models.NewRecord("rec2", map[string]any{"Name": "B"}),
	)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "rec1", list[0].ID)
	assert.Equal(t, "rec2", list[1].ID)
}

func TestDuckDB_TableReuseAndValidation(t *testing.T) {
	ctx := context.Background()
	db, err := OpenDuckDB(filepath.Join(t.TempDir(), "nested", "pid.duckdb"), DuckOptions{})
	require.NoError(t, err)
	defer db.Close()

	a, err := db.Table(ctx, "items")
	require.NoError(t, err)
	b, err := db.Table(ctx, "items")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = db.Table(ctx, "items; DROP TABLE x")
	assert.Error(t, err)
}

func TestDuckDB_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pid.duckdb")

	db, err := OpenDuckDB(path, DuckOptions{})
	require.NoError(t, err)
	s, err := db.Table(ctx, "items")
	require.NoError(t, err)
	rec, err := s.Create(ctx, map[string]any{"Name": "Tank", "Sequence": 4})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenDuckDB(path, DuckOptions{})
	require.NoError(t, err)
	defer db.Close()
	s, err = db.Table(ctx, "items")
	require.NoError(t, err)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tank", got.Fields["Name"])
	assert.Equal(t, "4", got.Fields["Sequence"].(interface{ String() string }).String())
}
