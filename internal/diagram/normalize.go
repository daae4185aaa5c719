package diagram

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pid-editor/backend/internal/codegen"
	"github.com/pid-editor/backend/internal/models"
)

// normalized is an item plus the raw connection references it arrived with.
type normalized struct {
	item models.Item
	refs []models.Connection
}

// Normalize turns persistence records into fully defaulted items with resolved
// connections. It is the only place where field defaults are applied; every caller
// must go through it before classification or layout.
func Normalize(records []models.Record) []models.Item {
	entries := normalizeRecords(records)
	return resolveConnections(entries)
}

func normalizeRecords(records []models.Record) []normalized {
	entries := make([]normalized, 0, len(records))
	seen := make(map[string]int, len(records))

	for _, rec := range records {
		f := rec.Fields
		it := models.Item{
			Name:       stringField(f, models.FieldName),
			Category:   stringField(f, models.FieldCategory),
			Type:       stringField(f, models.FieldType),
			Unit:       stringField(f, models.FieldUnit),
			SubUnit:    stringField(f, models.FieldSubUnit),
			Sequence:   intField(f, models.FieldSequence, 1),
			Number:     intField(f, models.FieldNumber, 1),
			SensorType: stringField(f, models.FieldSensorType),
		}
		if it.Category == "" {
			it.Category = models.DefaultCategory
		}
		if it.Unit == "" {
			it.Unit = models.DefaultUnit
		}
		if it.SubUnit == "" {
			it.SubUnit = models.DefaultSubUnit
		}

		it.Code = stringField(f, models.FieldCode)
		if it.Code == "" {
			it.Code = stringField(f, models.FieldItemCode)
		}
		if it.Code == "" {
			it.Code = codegen.GenerateWithFallback(classify(it))
			it.CodeGenerated = true
		}

		if x, ok := floatField(f, models.FieldX); ok {
			if y, ok := floatField(f, models.FieldY); ok {
				it.X, it.Y = &x, &y
			}
		}

		it.ID = rec.ID
		if it.ID == "" {
			it.ID = synthesizeID(it, seen)
		}

		entries = append(entries, normalized{
			item: it,
			refs: ParseConnections(f[models.FieldConnections]),
		})
	}
	return entries
}

func resolveConnections(entries []normalized) []models.Item {
	items := make([]models.Item, len(entries))
	for i, e := range entries {
		items[i] = e.item
	}

	resolver := NewResolver(items)
	for i, e := range entries {
		items[i].Connections = resolver.ResolveAll(e.refs)
	}
	return items
}

// classify maps a normalized item onto code generator inputs. The grouping
// placeholders count as unit 0.
func classify(it models.Item) codegen.Classification {
	c := codegen.Classification{
		Category:   it.Category,
		Type:       it.Type,
		Unit:       it.Unit,
		SubUnit:    it.SubUnit,
		Sequence:   &it.Sequence,
		SensorType: it.SensorType,
	}
	if c.Unit == models.DefaultUnit {
		c.Unit = ""
	}
	if c.SubUnit == models.DefaultSubUnit {
		c.SubUnit = ""
	}
	return c
}

// synthesizeID builds a deterministic id for records without one. Repeats get a
// numeric suffix so every item in a run has a distinct id.
func synthesizeID(it models.Item, seen map[string]int) string {
	base := fmt.Sprintf("%s-%s-%s-%s", it.Category, it.Type, it.Name, it.Code)
	seen[base]++
	if n := seen[base]; n > 1 {
		return fmt.Sprintf("%s-%d", base, n)
	}
	return base
}

// stringField reads a scalar string. Reference lists are flattened to their first
// element and numbers are formatted without trailing zeros.
func stringField(fields map[string]any, key string) string {
	return strings.TrimSpace(toString(fields[key]))
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		if len(val) == 0 {
			return ""
		}
		return val[0]
	case []any:
		if len(val) == 0 {
			return ""
		}
		return toString(val[0])
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return toString(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// intField coerces a field to an int, returning def when missing or non-numeric.
func intField(fields map[string]any, key string, def int) int {
	switch val := fields[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case int32:
		return int(val)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || !finite(f) {
			return def
		}
		return int(f)
	}
	if f, ok := floatField(fields, key); ok {
		return int(f)
	}
	return def
}

// floatField returns a finite numeric field value.
func floatField(fields map[string]any, key string) (float64, bool) {
	var f float64
	switch val := fields[key].(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
