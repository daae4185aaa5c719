// Package codegen derives the short identifying code of an engineering item from its
// classification fields.
package codegen

import (
	"sort"
	"strconv"
)

// MaxCodeLength bounds every generated code.
const MaxCodeLength = 5

// DefaultSensorPrefix is used for instruments whose sensor type is unknown.
const DefaultSensorPrefix = 40

// categoryPrefixes is keyed by exact Category string.
var categoryPrefixes = map[string]string{
	"Equipment":    "0",
	"Inline Valve": "30",
	"Pipe":         "00",
	"Duct":         "70",
	"Instrument":   "4",
	"Structure":    "50",
	"Electrical":   "80",
	"General":      "9",
	"Plant/System": "00",
}

// sensorPrefixes is keyed by exact SensorType string. Spellings match the upstream
// sensor catalogue.
var sensorPrefixes = map[string]int{
	"PRESSURE TRANSMITTER":     41,
	"TEMPERATURE TRANSMITTER":  42,
	"PH PROBE SENSOR":          43,
	"O2 DETECTION SENSOR":      44,
	"TURBIDITY ANALYZER PROBE": 45,
	"ETG GAS ANALYZER":         46,
	"LEVEL TRANSMITTER":        47,
	"WEIGHTING SENSOR":         48,
	"Vibration Sensor":         49,
	"Suspended Solids Sensor":  50,
	"Rotation sensor":          51,
	"Salinity Sensor":          52,
	"Pressure Gauge":           54,
	"Flow Transmitter":         6,
	"Positon switch sensor":    53,
}

// Classification holds the inputs of GenerateCode. Empty Unit and SubUnit count as "0".
// A nil Sequence means the item has no position in its SubUnit.
type Classification struct {
	Category   string `json:"Category"`
	Type       string `json:"Type,omitempty"`
	Unit       string `json:"Unit,omitempty"`
	SubUnit    string `json:"SubUnit,omitempty"`
	Sequence   *int   `json:"Sequence,omitempty"`
	SensorType string `json:"SensorType,omitempty"`
}

// CategoryPrefix returns the prefix for a category, or "" when unknown.
func CategoryPrefix(category string) string {
	return categoryPrefixes[category]
}

// SensorPrefix returns the prefix for a sensor type, or DefaultSensorPrefix when unknown.
func SensorPrefix(sensorType string) int {
	if p, ok := sensorPrefixes[sensorType]; ok {
		return p
	}
	return DefaultSensorPrefix
}

// Categories returns the known category names, sorted.
func Categories() []string {
	return sortedKeys(categoryPrefixes)
}

// SensorTypes returns the known sensor type names, sorted.
func SensorTypes() []string {
	return sortedKeys(sensorPrefixes)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GenerateCode derives the item code. It never fails: unknown categories and sensor
// types degrade to their defaults.
//
// Equipment and Instrument items with a Sequence get Unit, SubUnit, prefix and Sequence
// concatenated; instruments use the finer sensor prefix. Equipment with a Sequence above
// 9 drops the "0" prefix entirely. Every other item gets the bare category prefix.
func GenerateCode(c Classification) string {
	prefix := CategoryPrefix(c.Category)
	unit := orZero(c.Unit)
	subUnit := orZero(c.SubUnit)

	var code string
	switch {
	case !sequenced(c.Category) || c.Sequence == nil:
		code = prefix
	case *c.Sequence > 9 && prefix == "0":
		code = unit + subUnit + strconv.Itoa(*c.Sequence)
	default:
		prefixToUse := prefix
		if prefix == "4" {
			prefixToUse = strconv.Itoa(SensorPrefix(c.SensorType))
		}
		code = unit + subUnit + prefixToUse + strconv.Itoa(*c.Sequence)
	}

	return truncate(code)
}

// GenerateWithFallback calls GenerateCode and, when the result is empty or "0",
// retries with Sequence 1.
func GenerateWithFallback(c Classification) string {
	code := GenerateCode(c)
	if code != "" && code != "0" {
		return code
	}
	one := 1
	c.Sequence = &one
	return GenerateCode(c)
}

func sequenced(category string) bool {
	return category == "Equipment" || category == "Instrument"
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func truncate(code string) string {
	runes := []rune(code)
	if len(runes) > MaxCodeLength {
		return string(runes[:MaxCodeLength])
	}
	return code
}
