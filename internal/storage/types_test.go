package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pid-editor/backend/internal/cache"
	"github.com/pid-editor/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	Store
	gets atomic.Int32
	err  error
	wait chan struct{}
}

func (c *countingStore) Get(ctx context.Context, id string) (models.Record, error) {
	c.gets.Add(1)
	if c.wait != nil {
		<-c.wait
	}
	if c.err != nil {
		return models.Record{}, c.err
	}
	return c.Store.Get(ctx, id)
}

func newTypes() *MemoryStore {
	s := NewMemoryStore()
	s.Seed(
		models.NewRecord("recPump", map[string]any{"Name": "Centrifugal Pump"}),
		models.NewRecord("recValve", map[string]any{"Name": "Gate Valve"}),
	)
	return s
}

func TestTypeResolver_CachesNames(t *testing.T) {
	ctx := context.Background()
	types := &countingStore{Store: newTypes()}
	r := NewTypeResolver(types, cache.NewMemoryCache(), time.Hour, nil)

	name, err := r.Resolve(ctx, "recPump")
	require.NoError(t, err)
	assert.Equal(t, "Centrifugal Pump", name)

	name, err = r.Resolve(ctx, "recPump")
	require.NoError(t, err)
	assert.Equal(t, "Centrifugal Pump", name)
	assert.Equal(t, int32(1), types.gets.Load())
}

func TestTypeResolver_UnknownIDResolvesToItself(t *testing.T) {
	r := NewTypeResolver(newTypes(), nil, 0, nil)
	name, err := r.Resolve(context.Background(), "Pump")
	require.NoError(t, err)
	assert.Equal(t, "Pump", name)
}

func TestTypeResolver_StoreError(t *testing.T) {
	types := &countingStore{Store: newTypes(), err: errors.New("boom")}
	r := NewTypeResolver(types, nil, 0, nil)
	_, err := r.Resolve(context.Background(), "recPump")
	assert.Error(t, err)
}

func TestTypeResolver_DeduplicatesConcurrentLookups(t *testing.T) {
	types := &countingStore{Store: newTypes(), wait: make(chan struct{})}
	r := NewTypeResolver(types, nil, 0, nil)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Resolve(context.Background(), "recValve")
		}(i)
	}

	// Let the goroutines pile up behind the first lookup.
	time.Sleep(50 * time.Millisecond)
	close(types.wait)
	wg.Wait()

	for _, name := range results {
		assert.Equal(t, "Gate Valve", name)
	}
	assert.Less(t, types.gets.Load(), int32(8))
}

func TestTypeResolver_ResolveRecords(t *testing.T) {
	r := NewTypeResolver(newTypes(), cache.NewMemoryCache(), 0, nil)
	records := []models.Record{
		models.NewRecord("a", map[string]any{"Type": []any{"recPump", "recValve"}}),
		models.NewRecord("b", map[string]any{"Type": []string{"recValve"}}),
		models.NewRecord("c", map[string]any{"Type": "Plain"}),
		models.NewRecord("d", map[string]any{"Type": []any{}}),
	}

	require.NoError(t, r.ResolveRecords(context.Background(), records))
	assert.Equal(t, "Centrifugal Pump", records[0].Fields["Type"])
	assert.Equal(t, "Gate Valve", records[1].Fields["Type"])
	assert.Equal(t, "Plain", records[2].Fields["Type"])
	assert.Equal(t, []any{}, records[3].Fields["Type"])
}
