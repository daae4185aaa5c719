package codegen

import (
	"sort"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func seq(n int) *int { return &n }

func TestGenerateCode(t *testing.T) {
	tests := []struct {
		name string
		in   Classification
		want string
	}{
		{
			name: "equipment large sequence drops prefix",
			in:   Classification{Category: "Equipment", Unit: "1", SubUnit: "2", Sequence: seq(15)},
			want: "1215",
		},
		{
			name: "equipment normal sequence",
			in:   Classification{Category: "Equipment", Unit: "1", SubUnit: "2", Sequence: seq(3)},
			want: "1203",
		},
		{
			name: "equipment sequence nine keeps prefix",
			in:   Classification{Category: "Equipment", Unit: "1", SubUnit: "2", Sequence: seq(9)},
			want: "1209",
		},
		{
			name: "equipment without sequence",
			in:   Classification{Category: "Equipment", Unit: "1", SubUnit: "2"},
			want: "0",
		},
		{
			name: "instrument uses sensor prefix",
			in:   Classification{Category: "Instrument", Unit: "2", SubUnit: "0", Sequence: seq(1), SensorType: "Pressure Gauge"},
			want: "20541",
		},
		{
			name: "instrument unknown sensor falls back to 40",
			in:   Classification{Category: "Instrument", Unit: "3", SubUnit: "1", Sequence: seq(2)},
			want: "31402",
		},
		{
			name: "instrument large sequence is truncated",
			in:   Classification{Category: "Instrument", Unit: "3", SubUnit: "1", Sequence: seq(12), SensorType: "LEVEL TRANSMITTER"},
			want: "31471",
		},
		{
			name: "flow transmitter single digit prefix",
			in:   Classification{Category: "Instrument", Unit: "1", SubUnit: "1", Sequence: seq(4), SensorType: "Flow Transmitter"},
			want: "1164",
		},
		{
			name: "pipe ignores sequence",
			in:   Classification{Category: "Pipe", Sequence: seq(99)},
			want: "00",
		},
		{
			name: "inline valve prefix only",
			in:   Classification{Category: "Inline Valve", Unit: "4", SubUnit: "4", Sequence: seq(1)},
			want: "30",
		},
		{
			name: "unknown category",
			in:   Classification{Category: "Spaceship", Sequence: seq(1)},
			want: "",
		},
		{
			name: "empty unit and subunit count as zero",
			in:   Classification{Category: "Equipment", Sequence: seq(5)},
			want: "0005",
		},
		{
			name: "long unit names are cut",
			in:   Classification{Category: "Equipment", Unit: "12", SubUnit: "34", Sequence: seq(7)},
			want: "12340",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateCode(tt.in))
		})
	}
}

func TestGenerateCode_Deterministic(t *testing.T) {
	in := Classification{Category: "Instrument", Type: "PT", Unit: "7", SubUnit: "3", Sequence: seq(2), SensorType: "PH PROBE SENSOR"}
	first := GenerateCode(in)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, GenerateCode(in))
	}
}

func TestGenerateCode_LengthBound(t *testing.T) {
	categories := []string{"Equipment", "Inline Valve", "Pipe", "Duct", "Instrument", "Structure", "Electrical", "General", "Plant/System", "Other"}
	units := []string{"", "1", "12", "No Unit", "Ünit-ä"}
	sensors := []string{"", "Pressure Gauge", "Flow Transmitter", "nonsense"}

	for _, cat := range categories {
		for _, u := range units {
			for _, su := range units {
				for _, s := range sensors {
					for _, n := range []int{0, 1, 9, 10, 999999} {
						code := GenerateCode(Classification{Category: cat, Unit: u, SubUnit: su, Sequence: seq(n), SensorType: s})
						if utf8.RuneCountInString(code) > MaxCodeLength {
							t.Fatalf("code %q longer than %d for %s/%s/%s/%d/%s", code, MaxCodeLength, cat, u, su, n, s)
						}
					}
				}
			}
		}
	}
}

func TestGenerateWithFallback(t *testing.T) {
	// Equipment with no sequence yields "0", which the fallback replaces.
	got := GenerateWithFallback(Classification{Category: "Equipment", Unit: "1", SubUnit: "2"})
	assert.Equal(t, "1201", got)

	// A usable code is returned unchanged.
	got = GenerateWithFallback(Classification{Category: "Pipe"})
	assert.Equal(t, "00", got)

	// Unknown categories stay empty even after the retry.
	got = GenerateWithFallback(Classification{Category: "Spaceship"})
	assert.Equal(t, "", got)
}

func TestSensorPrefix(t *testing.T) {
	assert.Equal(t, 54, SensorPrefix("Pressure Gauge"))
	assert.Equal(t, 53, SensorPrefix("Positon switch sensor"))
	assert.Equal(t, DefaultSensorPrefix, SensorPrefix("pressure gauge"))
}

func TestCatalogues(t *testing.T) {
	cats := Categories()
	assert.Contains(t, cats, "Equipment")
	assert.Contains(t, cats, "Plant/System")
	assert.True(t, sort.StringsAreSorted(cats))

	sensors := SensorTypes()
	assert.Len(t, sensors, 15)
	assert.True(t, sort.StringsAreSorted(sensors))
}
