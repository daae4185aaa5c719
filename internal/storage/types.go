package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pid-editor/backend/internal/cache"
	"github.com/pid-editor/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TypeResolver turns linked Type record ids into Type names.
type TypeResolver struct {
	types  Store
	cache  cache.Cache
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// NewTypeResolver creates a resolver reading names from the types store.
// A nil cache disables caching.
func NewTypeResolver(types Store, c cache.Cache, ttl time.Duration, logger *zap.Logger) *TypeResolver {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypeResolver{types: types, cache: c, ttl: ttl, logger: logger}
}

// Resolve returns the name of the Type record id. Unknown ids resolve to themselves.
func (r *TypeResolver) Resolve(ctx context.Context, id string) (string, error) {
	key := cache.Key("type", id)
	if data, ok, err := r.cache.Get(ctx, key); err != nil {
		r.logger.Warn("type cache read failed", zap.String("id", id), zap.Error(err))
	} else if ok {
		return string(data), nil
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		rec, err := r.types.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
		name, _ := rec.Fields[models.FieldName].(string)
		if name == "" {
			name = id
		}
		if err := r.cache.Set(ctx, key, []byte(name), r.ttl); err != nil {
			r.logger.Warn("type cache write failed", zap.String("id", id), zap.Error(err))
		}
		return name, nil
	})
	if err != nil {
		return "", fmt.Errorf("resolving type %s: %w", id, err)
	}
	return v.(string), nil
}

// ResolveRecords replaces list-valued Type fields with the resolved name of their first
// element. Records are modified in place.
func (r *TypeResolver) ResolveRecords(ctx context.Context, records []models.Record) error {
	for i := range records {
		id, ok := firstLinked(records[i].Fields[models.FieldType])
		if !ok {
			continue
		}
		name, err := r.Resolve(ctx, id)
		if err != nil {
			return err
		}
		records[i].Fields[models.FieldType] = name
	}
	return nil
}

func firstLinked(v any) (string, bool) {
	switch t := v.(type) {
	case []string:
		if len(t) > 0 && t[0] != "" {
			return t[0], true
		}
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}
