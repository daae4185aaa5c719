package session

import (
	"context"
	"testing"
	"time"

	"github.com/pid-editor/backend/internal/diagram"
	"github.com/pid-editor/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager(Deps{Store: seededStore()}, diagram.NewEngine(diagram.DefaultConfig(), nil), models.UnitArrangement{{"1"}})
}

func TestManager_CreateGetDelete(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	d, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	got, ok := m.Get(d.ID())
	require.True(t, ok)
	assert.Same(t, d, got)
	assert.True(t, m.Touch(d.ID()))

	infos := m.List()
	require.Len(t, infos, 1)
	assert.Equal(t, 2, infos[0].ItemCount)

	assert.True(t, m.Delete(d.ID()))
	assert.False(t, m.Delete(d.ID()))
	_, ok = m.Get(d.ID())
	assert.False(t, ok)
}

func TestManager_CleanupOldSessions(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	stale, err := m.Create(context.Background())
	require.NoError(t, err)
	fresh, err := m.Create(context.Background())
	require.NoError(t, err)

	stale.lastAccessed.Store(time.Now().Add(-2 * time.Hour).UnixNano())

	assert.Equal(t, 1, m.CleanupOldSessions(30*time.Minute))
	_, ok := m.Get(stale.ID())
	assert.False(t, ok)
	_, ok = m.Get(fresh.ID())
	assert.True(t, ok)
}

func TestManager_SetEngineRelaysOut(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	d, err := m.Create(context.Background())
	require.NoError(t, err)

	palette := models.DefaultPaletteRules()
	palette.Renderers = []models.RendererRule{{Category: "Equipment", NodeType: "pump"}}
	m.SetEngine(diagram.NewEngine(diagram.DefaultConfig(), palette), models.UnitArrangement{{"7"}})

	for _, n := range d.Snapshot().Nodes {
		if !n.IsFrame() {
			assert.Equal(t, "pump", n.Type)
		}
	}

	next, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.UnitArrangement{{"7", "1"}}, next.Snapshot().Arrangement)
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	m := newTestManager()
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 10*time.Millisecond, time.Hour)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}
