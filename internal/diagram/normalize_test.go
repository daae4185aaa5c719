package diagram

import (
	"encoding/json"
	"testing"

	"github.com/pid-editor/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Defaults(t *testing.T) {
	items := Normalize([]models.Record{
		{ID: "rec1", Fields: map[string]any{"Name": "Feed Pump"}},
	})
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, "rec1", it.ID)
	assert.Equal(t, "Equipment", it.Category)
	assert.Equal(t, models.DefaultUnit, it.Unit)
	assert.Equal(t, models.DefaultSubUnit, it.SubUnit)
	assert.Equal(t, 1, it.Sequence)
	assert.Equal(t, 1, it.Number)
	assert.Equal(t, "0001", it.Code)
	assert.True(t, it.CodeGenerated)
	assert.Nil(t, it.X)
}

func TestNormalize_Coercion(t *testing.T) {
	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"Name": "Tank",
		"Category": "Equipment",
		"Type": ["recTypeTank", "recOther"],
		"Unit": 3,
		"SubUnit": "1",
		"Sequence": "4",
		"Number": "many",
		"x": 120.5,
		"y": 80
	}`), &fields))

	items := Normalize([]models.Record{{ID: "t1", Fields: fields}})
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, "recTypeTank", it.Type)
	assert.Equal(t, "3", it.Unit)
	assert.Equal(t, 4, it.Sequence)
	assert.Equal(t, 1, it.Number)
	assert.Equal(t, "3104", it.Code)
	require.NotNil(t, it.X)
	require.NotNil(t, it.Y)
	assert.Equal(t, 120.5, *it.X)
	assert.Equal(t, 80.0, *it.Y)
}

func TestNormalize_SuppliedCode(t *testing.T) {
	items := Normalize([]models.Record{
		{ID: "a", Fields: map[string]any{"Name": "A", "Code": "X1"}},
		{ID: "b", Fields: map[string]any{"Name": "B", "Item Code": "X2"}},
	})
	assert.Equal(t, "X1", items[0].Code)
	assert.False(t, items[0].CodeGenerated)
	assert.Equal(t, "X2", items[1].Code)
}

func TestNormalize_SynthesizedIDs(t *testing.T) {
	rec := models.Record{Fields: map[string]any{"Name": "Valve", "Category": "Inline Valve", "Type": "Gate"}}
	items := Normalize([]models.Record{rec, rec})

	assert.Equal(t, "Inline Valve-Gate-Valve-30", items[0].ID)
	assert.Equal(t, "Inline Valve-Gate-Valve-30-2", items[1].ID)

	again := Normalize([]models.Record{rec, rec})
	assert.Equal(t, items[0].ID, again[0].ID)
	assert.Equal(t, items[1].ID, again[1].ID)
}

func TestNormalize_NonFinitePositionIgnored(t *testing.T) {
	items := Normalize([]models.Record{
		{ID: "a", Fields: map[string]any{"x": "12", "y": 4.0}},
	})
	assert.Nil(t, items[0].X)
	assert.Nil(t, items[0].Y)
}

func TestNormalize_NumericStringsTruncateLikeNumbers(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int
	}{
		{"integer string", "4", 4},
		{"decimal string", "2.0", 2},
		{"fractional string", "3.5", 3},
		{"fractional number", 3.5, 3},
		{"padded string", " 7 ", 7},
		{"not a number", "many", 1},
		{"infinite string", "Inf", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := Normalize([]models.Record{{ID: "i1", Fields: map[string]any{
				"Name":     "Tank",
				"Sequence": tt.in,
				"Number":   tt.in,
			}}})
			require.Len(t, items, 1)
			assert.Equal(t, tt.want, items[0].Sequence)
			assert.Equal(t, tt.want, items[0].Number)
		})
	}
}
