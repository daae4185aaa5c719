// mock_storage.go - Mock record store for testing
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/pid-editor/backend/internal/models"
	"github.com/pid-editor/backend/internal/storage"
)

// ErrInjected is the default error returned by a failing operation.
var ErrInjected = errors.New("injected store failure")

// Store operation names accepted by FailOn.
const (
	OpList   = "list"
	OpGet    = "get"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// MockStorage implements storage.Store in memory and can be told to fail operations.
type MockStorage struct {
	*storage.MemoryStore

	mu    sync.Mutex
	fail  map[string]error
	nth   map[string]nthFailure
	calls map[string]int
}

type nthFailure struct {
	call int
	err  error
}

// NewMockStorage creates a mock seeded with records.
func NewMockStorage(records ...models.Record) *MockStorage {
	m := &MockStorage{
		MemoryStore: storage.NewMemoryStore(),
		fail:        make(map[string]error),
		nth:         make(map[string]nthFailure),
		calls:       make(map[string]int),
	}
	m.Seed(records...)
	return m
}

// FailOn makes op return err (ErrInjected when nil) until Reset is called.
func (m *MockStorage) FailOn(op string, err error) {
	if err == nil {
		err = ErrInjected
	}
	m.mu.Lock()
	m.fail[op] = err
	m.mu.Unlock()
}

// FailNth makes only the n-th next call of op (counting from 1) return err
// (ErrInjected when nil). Calls before and after it succeed.
func (m *MockStorage) FailNth(op string, n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	m.mu.Lock()
	m.nth[op] = nthFailure{call: m.calls[op] + n, err: err}
	m.mu.Unlock()
}

// Reset clears injected failures.
func (m *MockStorage) Reset() {
	m.mu.Lock()
	m.fail = make(map[string]error)
	m.nth = make(map[string]nthFailure)
	m.mu.Unlock()
}

// Calls returns how many times op was invoked.
func (m *MockStorage) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockStorage) check(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	if f, ok := m.nth[op]; ok && f.call == m.calls[op] {
		delete(m.nth, op)
		return f.err
	}
	return m.fail[op]
}

func (m *MockStorage) List(ctx context.Context) ([]models.Record, error) {
	if err := m.check(OpList); err != nil {
		return nil, err
	}
	return m.MemoryStore.List(ctx)
}

func (m *MockStorage) Get(ctx context.Context, id string) (models.Record, error) {
	if err := m.check(OpGet); err != nil {
		return models.Record{}, err
	}
	return m.MemoryStore.Get(ctx, id)
}

func (m *MockStorage) Create(ctx context.Context, fields map[string]any) (models.Record, error) {
	if err := m.check(OpCreate); err != nil {
		return models.Record{}, err
	}
	return m.MemoryStore.Create(ctx, fields)
}

func (m *MockStorage) Update(ctx context.Context, id string, fields map[string]any) (models.Record, error) {
	if err := m.check(OpUpdate); err != nil {
		return models.Record{}, err
	}
	return m.MemoryStore.Update(ctx, id, fields)
}

func (m *MockStorage) Delete(ctx context.Context, id string) error {
	if err := m.check(OpDelete); err != nil {
		return err
	}
	return m.MemoryStore.Delete(ctx, id)
}

// Item builds a record field bag for tests.
func Item(name, category, unit, subUnit string, sequence int, connections ...string) map[string]any {
	fields := map[string]any{
		models.FieldName:     name,
		models.FieldCategory: category,
		models.FieldUnit:     unit,
		models.FieldSubUnit:  subUnit,
		models.FieldSequence: sequence,
	}
	if len(connections) > 0 {
		fields[models.FieldConnections] = connections
	}
	return fields
}

var _ storage.Store = (*MockStorage)(nil)
