package diagram

import (
	"math"

	"github.com/pid-editor/backend/internal/models"
)

// Source tells where an item's position came from.
type Source int

const (
	// SourceNone means the item needs a first-time placement.
	SourceNone Source = iota
	// SourceCache is a position carried over from the previous node list.
	SourceCache
	// SourcePersisted is an explicit x/y stored with the item.
	SourcePersisted
)

type cachedPosition struct {
	pos     models.Position
	unit    string
	subUnit string
	hasItem bool
}

// PositionCache maps item ids to their last known position. It is rebuilt from the
// previous node list on every run and never mutated afterwards.
type PositionCache struct {
	entries map[string]cachedPosition
}

// NewPositionCache builds the cache from nodes. Frames and nodes with non-finite
// coordinates are skipped.
func NewPositionCache(nodes []models.Node) *PositionCache {
	c := &PositionCache{entries: make(map[string]cachedPosition, len(nodes))}
	for _, n := range nodes {
		if n.IsFrame() || !finite(n.Position.X) || !finite(n.Position.Y) {
			continue
		}
		entry := cachedPosition{pos: n.Position}
		if n.Data.Item != nil {
			entry.hasItem = true
			entry.unit = n.Data.Item.Unit
			entry.subUnit = n.Data.Item.SubUnit
		}
		c.entries[n.ID] = entry
	}
	return c
}

// Resolve applies the placement priority for an item: cached position, then the
// item's persisted x/y, then none. A Unit/SubUnit change since the cached run, or
// force, invalidates both the cache and the persisted position.
func (c *PositionCache) Resolve(it models.Item, force bool) (models.Position, Source) {
	if force {
		return models.Position{}, SourceNone
	}

	if e, ok := c.entries[it.ID]; ok {
		if e.hasItem && (e.unit != it.Unit || e.subUnit != it.SubUnit) {
			return models.Position{}, SourceNone
		}
		return e.pos, SourceCache
	}

	if it.X != nil && it.Y != nil && finite(*it.X) && finite(*it.Y) {
		return models.Position{X: *it.X, Y: *it.Y}, SourcePersisted
	}
	return models.Position{}, SourceNone
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
