package diagram

import (
	"sort"
	"strconv"

	"github.com/pid-editor/backend/internal/models"
)

// RepairArrangement returns a copy of arrangement in which every Unit used by items
// appears. Missing Units are appended to the first row in order of first appearance.
func RepairArrangement(arrangement models.UnitArrangement, items []models.Item) models.UnitArrangement {
	out := arrangement.Clone()
	for _, it := range items {
		if out.Contains(it.Unit) {
			continue
		}
		if len(out) == 0 {
			out = append(out, nil)
		}
		out[0] = append(out[0], it.Unit)
	}
	return out
}

// sortSubUnits orders SubUnit lanes: numeric names numerically, then other names
// lexically, with the placeholder lane last.
func sortSubUnits(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return lessLane(names[i], names[j])
	})
}

func lessLane(a, b string) bool {
	if a == models.DefaultSubUnit || b == models.DefaultSubUnit {
		return b == models.DefaultSubUnit && a != models.DefaultSubUnit
	}
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		if ai != bi {
			return ai < bi
		}
		return a < b
	case aerr == nil:
		return true
	case berr == nil:
		return false
	}
	return a < b
}
