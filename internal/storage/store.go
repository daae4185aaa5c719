package storage

import (
	"context"
	"errors"

	"github.com/pid-editor/backend/internal/models"
)

// ErrNotFound is returned when a record id is unknown to the store.
var ErrNotFound = errors.New("record not found")

// Store defines the persistence collaborator for diagram records.
// Update merges the given fields into the stored bag; a nil value removes the key.
type Store interface {
	List(ctx context.Context) ([]models.Record, error)
	Get(ctx context.Context, id string) (models.Record, error)
	Create(ctx context.Context, fields map[string]any) (models.Record, error)
	Update(ctx context.Context, id string, fields map[string]any) (models.Record, error)
	Delete(ctx context.Context, id string) error
}

// mergeFields applies a patch to a copy of base.
func mergeFields(base, patch map[string]any) map[string]any {
	out := models.CloneFields(base)
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
