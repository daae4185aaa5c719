// Package session holds the per-session diagram state and the manager that owns it.
package session

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pid-editor/backend/internal/diagram"
	"github.com/pid-editor/backend/internal/metrics"
	"github.com/pid-editor/backend/internal/models"
	"go.uber.org/zap"
)

// MaxSessions limits concurrent sessions.
const MaxSessions = 64

// SessionKeepAliveWindow protects recently used sessions from cleanup.
const SessionKeepAliveWindow = 5 * time.Minute

// Manager handles open editing sessions.
type Manager struct {
	deps        Deps
	engine      atomic.Pointer[diagram.Engine]
	arrangement models.UnitArrangement
	logger      *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Diagram
}

// NewManager creates a manager. New sessions start from the given arrangement.
func NewManager(deps Deps, engine *diagram.Engine, arrangement models.UnitArrangement) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	deps.Logger = logger

	m := &Manager{
		deps:        deps,
		arrangement: arrangement.Clone(),
		logger:      logger,
		sessions:    make(map[string]*Diagram),
	}
	m.engine.Store(engine)
	return m
}

// Engine returns the current layout engine.
func (m *Manager) Engine() *diagram.Engine {
	return m.engine.Load()
}

// SetEngine swaps the layout engine and relays out every open session. A non-nil
// arrangement becomes the starting arrangement of new sessions.
func (m *Manager) SetEngine(e *diagram.Engine, arrangement models.UnitArrangement) {
	m.engine.Store(e)
	if arrangement != nil {
		m.mu.Lock()
		m.arrangement = arrangement.Clone()
		m.mu.Unlock()
	}
	for _, d := range m.all() {
		d.Relayout()
	}
}

// Create opens a session and loads the store contents into it.
func (m *Manager) Create(ctx context.Context) (*Diagram, error) {
	m.evictIfFull()

	m.mu.RLock()
	arrangement := m.arrangement
	m.mu.RUnlock()

	d := NewDiagram(uuid.New().String(), m.deps, m.Engine, arrangement)
	if err := d.Load(ctx); err != nil {
		d.Close()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[d.ID()] = d
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	m.logger.Info("session created", zap.String("session", d.ID()))
	return d, nil
}

// Get returns a session and marks it used.
func (m *Manager) Get(id string) (*Diagram, bool) {
	m.mu.RLock()
	d, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		d.touch()
	}
	return d, ok
}

// Touch marks a session used.
func (m *Manager) Touch(id string) bool {
	_, ok := m.Get(id)
	return ok
}

// Delete closes and removes a session.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	d, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()

	if ok {
		d.Close()
	}
	return ok
}

// List returns info for every session, most recently used first.
func (m *Manager) List() []models.SessionInfo {
	sessions := m.all()
	infos := make([]models.SessionInfo, 0, len(sessions))
	for _, d := range sessions {
		infos = append(infos, d.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastAccessed.After(infos[j].LastAccessed)
	})
	return infos
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupOldSessions removes sessions idle for longer than maxAge, but never sessions
// used within SessionKeepAliveWindow.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	if maxAge < SessionKeepAliveWindow {
		maxAge = SessionKeepAliveWindow
	}
	cutoff := time.Now().Add(-maxAge)

	var stale []*Diagram
	m.mu.Lock()
	for id, d := range m.sessions {
		if d.LastAccessed().Before(cutoff) {
			stale = append(stale, d)
			delete(m.sessions, id)
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	for _, d := range stale {
		d.Close()
		m.logger.Info("cleaned up idle session",
			zap.String("session", d.ID()),
			zap.Duration("idle", time.Since(d.LastAccessed()).Round(time.Second)))
	}
	return len(stale)
}

// Run removes idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupOldSessions(maxAge)
		}
	}
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Diagram)
	metrics.ActiveSessions.Set(0)
	m.mu.Unlock()

	for _, d := range sessions {
		d.Close()
	}
}

func (m *Manager) all() []*Diagram {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Diagram, 0, len(m.sessions))
	for _, d := range m.sessions {
		out = append(out, d)
	}
	return out
}

// evictIfFull drops the least recently used session when at capacity.
func (m *Manager) evictIfFull() {
	m.mu.Lock()
	if len(m.sessions) < MaxSessions {
		m.mu.Unlock()
		return
	}
	var oldest *Diagram
	for _, d := range m.sessions {
		if oldest == nil || d.LastAccessed().Before(oldest.LastAccessed()) {
			oldest = d
		}
	}
	delete(m.sessions, oldest.ID())
	m.mu.Unlock()

	oldest.Close()
	m.logger.Info("evicted session at capacity", zap.String("session", oldest.ID()))
}
