package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pid-editor/backend/internal/models"
)

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.Record
	order   map[string]int64
	seq     int64
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]models.Record),
		order:   make(map[string]int64),
		now:     time.Now,
	}
}

// Seed inserts records with fixed ids, replacing any existing ones.
func (s *MemoryStore) Seed(records ...models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		rec := r.Clone()
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.CreatedTime == "" {
			rec.CreatedTime = s.now().UTC().Format(time.RFC3339Nano)
		}
		s.seq++
		s.records[rec.ID] = rec
		s.order[rec.ID] = s.seq
	}
}

// List returns all records in insertion order.
func (s *MemoryStore) List(ctx context.Context) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]models.Record, 0, len(s.records))
	for _, r := range s.records {
		list = append(list, r.Clone())
	}

	sort.Slice(list, func(i, j int) bool {
		return s.order[list[i].ID] < s.order[list[j].ID]
	})

	return list, nil
}

// Get retrieves a record by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return models.Record{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return r.Clone(), nil
}

// Create stores a new record under a fresh id.
func (s *MemoryStore) Create(ctx context.Context, fields map[string]any) (models.Record, error) {
	rec := models.Record{
		ID:          uuid.New().String(),
		Fields:      mergeFields(nil, fields),
		CreatedTime: s.now().UTC().Format(time.RFC3339Nano),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.records[rec.ID] = rec
	s.order[rec.ID] = s.seq

	return rec.Clone(), nil
}

// Update merges fields into an existing record.
func (s *MemoryStore) Update(ctx context.Context, id string, fields map[string]any) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return models.Record{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	r.Fields = mergeFields(r.Fields, fields)
	s.records[id] = r

	return r.Clone(), nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	delete(s.records, id)
	delete(s.order, id)

	return nil
}

var _ Store = (*MemoryStore)(nil)
