package diagram

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pid-editor/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine() *Engine {
	n := 0
	return NewEngine(DefaultConfig(), nil).WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("edge-%d", n)
	})
}

func rec(id string, fields map[string]any) models.Record {
	return models.Record{ID: id, Fields: fields}
}

func nodeByID(t *testing.T, nodes []models.Node, id string) models.Node {
	t.Helper()
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("node %q not found", id)
	return models.Node{}
}

func positionsOf(nodes []models.Node) map[string]models.Position {
	out := make(map[string]models.Position)
	for _, n := range nodes {
		if !n.IsFrame() {
			out[n.ID] = n.Position
		}
	}
	return out
}

func TestBuild_FramesAndFirstPlacement(t *testing.T) {
	e := testEngine()
	cfg := e.Config()
	records := []models.Record{
		rec("b", map[string]any{"Name": "Second", "Unit": "U1", "SubUnit": "S1", "Sequence": 2.0}),
		rec("a", map[string]any{"Name": "First", "Unit": "U1", "SubUnit": "S1", "Sequence": 1.0}),
		rec("c", map[string]any{"Name": "Other", "Unit": "U2", "SubUnit": "S1", "Sequence": 1.0}),
	}

	res := e.Build(records, models.UnitArrangement{{"U1", "U2"}}, Options{})

	unit1 := nodeByID(t, res.Nodes, UnitFrameID("U1"))
	assert.Equal(t, models.Position{X: 0, Y: 0}, unit1.Position)
	assert.Equal(t, cfg.UnitWidth, unit1.Style.Width)
	assert.False(t, unit1.Draggable)
	assert.False(t, unit1.Selectable)

	unit2 := nodeByID(t, res.Nodes, UnitFrameID("U2"))
	assert.Equal(t, cfg.UnitWidth+cfg.Gutter, unit2.Position.X)

	lane := nodeByID(t, res.Nodes, SubUnitFrameID("U1", "S1"))
	assert.Equal(t, models.NodeTypeSubUnitFrame, lane.Type)
	assert.Equal(t, cfg.UnitHeight/9, lane.Style.Height)

	a := nodeByID(t, res.Nodes, "a")
	b := nodeByID(t, res.Nodes, "b")
	assert.Equal(t, cfg.LanePadding, a.Position.X)
	assert.Equal(t, cfg.ItemWidth+cfg.ItemGap, b.Position.X-a.Position.X)
	assert.Equal(t, a.Position.Y, b.Position.Y)
	assert.Equal(t, 3, res.Stats.Placed)
}

func TestBuild_LabelAndRenderer(t *testing.T) {
	res := testEngine().Build([]models.Record{
		rec("v", map[string]any{"Name": "Inlet", "Category": "Inline Valve", "Code": "V-1"}),
		rec("g", map[string]any{"Name": "Thing", "Category": "Mystery"}),
	}, nil, Options{})

	v := nodeByID(t, res.Nodes, "v")
	assert.Equal(t, "V-1 - Inlet", v.Data.Label)
	assert.Equal(t, "valve", v.Type)
	require.NotNil(t, v.Data.Item)
	assert.Equal(t, "Inline Valve", v.Data.Item.Category)

	g := nodeByID(t, res.Nodes, "g")
	assert.Equal(t, models.NodeTypeGeneric, g.Type)
	assert.Equal(t, " - Thing", g.Data.Label)
}

func TestBuild_PositionStability(t *testing.T) {
	e := testEngine()
	arr := models.UnitArrangement{{"U1"}}
	records := []models.Record{
		rec("a", map[string]any{"Name": "A", "Unit": "U1", "SubUnit": "S1", "Sequence": 1.0}),
		rec("b", map[string]any{"Name": "B", "Unit": "U1", "SubUnit": "S1", "Sequence": 2.0}),
	}
	first := e.Build(records, arr, Options{})

	moved := append([]models.Node(nil), first.Nodes...)
	for i := range moved {
		if moved[i].ID == "a" {
			moved[i].Position = models.Position{X: 777, Y: 333}
		}
	}

	// Add one unrelated item before a and remove b.
	next := []models.Record{
		rec("z", map[string]any{"Name": "Z", "Unit": "U1", "SubUnit": "S1", "Sequence": 0.0}),
		records[0],
		rec("n", map[string]any{"Name": "N", "Unit": "U9", "SubUnit": "S4"}),
	}
	second := e.Build(next, arr, Options{PreviousNodes: moved})

	assert.Equal(t, models.Position{X: 777, Y: 333}, nodeByID(t, second.Nodes, "a").Position)
	assert.Equal(t, 1, second.Stats.Reused)
	assert.Equal(t, 2, second.Stats.Placed)

	// A third run with nothing changed keeps every item exactly where it was.
	third := e.Build(next, arr, Options{PreviousNodes: second.Nodes})
	if diff := cmp.Diff(positionsOf(second.Nodes), positionsOf(third.Nodes)); diff != "" {
		t.Errorf("positions changed between identical runs (-want +got):\n%s", diff)
	}
}

func TestBuild_NewItemsAvoidKeptOnes(t *testing.T) {
	e := testEngine()
	arr := models.UnitArrangement{{"U1"}}
	first := e.Build([]models.Record{
		rec("a", map[string]any{"Name": "A", "Unit": "U1", "SubUnit": "S1"}),
	}, arr, Options{})
	a := nodeByID(t, first.Nodes, "a")

	second := e.Build([]models.Record{
		rec("a", map[string]any{"Name": "A", "Unit": "U1", "SubUnit": "S1"}),
		rec("b", map[string]any{"Name": "B", "Unit": "U1", "SubUnit": "S1"}),
	}, arr, Options{PreviousNodes: first.Nodes})

	b := nodeByID(t, second.Nodes, "b")
	assert.Equal(t, a.Position.X+e.Config().Step(), b.Position.X)
}

func TestBuild_RepositionOnUnitChange(t *testing.T) {
	e := testEngine()
	arr := models.UnitArrangement{{"U1", "U2"}}
	first := e.Build([]models.Record{
		rec("a", map[string]any{"Name": "A", "Unit": "U1", "SubUnit": "S1"}),
		rec("c", map[string]any{"Name": "C", "Unit": "U2", "SubUnit": "S2"}),
	}, arr, Options{})

	second := e.Build([]models.Record{
		rec("a", map[string]any{"Name": "A", "Unit": "U2", "SubUnit": "S2", "x": 5.0, "y": 5.0}),
		rec("c", map[string]any{"Name": "C", "Unit": "U2", "SubUnit": "S2"}),
	}, arr, Options{PreviousNodes: first.Nodes})

	lane := nodeByID(t, second.Nodes, SubUnitFrameID("U2", "S2"))
	pos := nodeByID(t, second.Nodes, "a").Position
	assert.GreaterOrEqual(t, pos.X, lane.Position.X)
	assert.Less(t, pos.X, lane.Position.X+lane.Style.Width)
	assert.GreaterOrEqual(t, pos.Y, lane.Position.Y)
	assert.Less(t, pos.Y, lane.Position.Y+lane.Style.Height)

	// c kept its spot and a landed after it.
	c := nodeByID(t, second.Nodes, "c")
	assert.Equal(t, nodeByID(t, first.Nodes, "c").Position, c.Position)
	assert.Equal(t, c.Position.X+e.Config().Step(), pos.X)
}

func TestBuild_ExplicitReposition(t *testing.T) {
	e := testEngine()
	records := []models.Record{
		rec("a", map[string]any{"Name": "A", "Unit": "U1", "SubUnit": "S1"}),
	}
	prev := []models.Node{{ID: "a", Position: models.Position{X: 9000, Y: 9000}}}

	kept := e.Build(records, nil, Options{PreviousNodes: prev})
	assert.Equal(t, models.Position{X: 9000, Y: 9000}, nodeByID(t, kept.Nodes, "a").Position)

	moved := e.Build(records, nil, Options{PreviousNodes: prev, Reposition: map[string]bool{"a": true}})
	assert.Equal(t, e.Config().LanePadding, nodeByID(t, moved.Nodes, "a").Position.X)

	all := e.Build(records, nil, Options{PreviousNodes: prev, RepositionAll: true})
	assert.Equal(t, nodeByID(t, moved.Nodes, "a").Position, nodeByID(t, all.Nodes, "a").Position)
}

func TestBuild_PersistedPosition(t *testing.T) {
	e := testEngine()
	records := []models.Record{
		rec("a", map[string]any{"Name": "A", "x": 50.0, "y": 60.0}),
	}

	res := e.Build(records, nil, Options{})
	assert.Equal(t, models.Position{X: 50, Y: 60}, nodeByID(t, res.Nodes, "a").Position)
	assert.Equal(t, 1, res.Stats.Persisted)

	// The cache outranks the persisted position.
	prev := []models.Node{{ID: "a", Position: models.Position{X: 1, Y: 2}}}
	res = e.Build(records, nil, Options{PreviousNodes: prev})
	assert.Equal(t, models.Position{X: 1, Y: 2}, nodeByID(t, res.Nodes, "a").Position)
}

func TestBuild_FrameSelfHealing(t *testing.T) {
	arr := models.UnitArrangement{{"U1"}, {"U2"}}
	res := testEngine().Build([]models.Record{
		rec("a", map[string]any{"Name": "A", "Unit": "U1"}),
		rec("x", map[string]any{"Name": "X", "Unit": "Ghost", "SubUnit": "S1"}),
	}, arr, Options{})

	assert.Equal(t, models.UnitArrangement{{"U1", "Ghost"}, {"U2"}}, res.Arrangement)
	assert.Equal(t, models.UnitArrangement{{"U1"}, {"U2"}}, arr, "input arrangement must not be mutated")

	ghost := nodeByID(t, res.Nodes, UnitFrameID("Ghost"))
	lane := nodeByID(t, res.Nodes, SubUnitFrameID("Ghost", "S1"))
	x := nodeByID(t, res.Nodes, "x")
	assert.Equal(t, 0.0, ghost.Position.Y)
	assert.True(t, x.Position.X > lane.Position.X && x.Position.Y > lane.Position.Y)

	// U2 has no items and gets no frame.
	for _, n := range res.Nodes {
		assert.NotEqual(t, UnitFrameID("U2"), n.ID)
	}
}

func TestBuild_EmptyArrangement(t *testing.T) {
	res := testEngine().Build([]models.Record{
		rec("a", map[string]any{"Name": "A"}),
	}, nil, Options{})
	assert.Equal(t, models.UnitArrangement{{models.DefaultUnit}}, res.Arrangement)
	nodeByID(t, res.Nodes, UnitFrameID(models.DefaultUnit))
	nodeByID(t, res.Nodes, SubUnitFrameID(models.DefaultUnit, models.DefaultSubUnit))
}

func TestBuild_SubUnitLanesStackAndOverflow(t *testing.T) {
	e := testEngine()
	var records []models.Record
	for i := 1; i <= 11; i++ {
		records = append(records, rec(fmt.Sprintf("i%d", i), map[string]any{
			"Name": "I", "Unit": "U1", "SubUnit": fmt.Sprintf("%d", i),
		}))
	}
	res := e.Build(records, nil, Options{})

	laneHeight := e.Config().LaneHeight()
	assert.Equal(t, 2*laneHeight, nodeByID(t, res.Nodes, SubUnitFrameID("U1", "3")).Position.Y)
	// Lanes past the ninth overflow below the Unit frame instead of being clipped.
	assert.Equal(t, 10*laneHeight, nodeByID(t, res.Nodes, SubUnitFrameID("U1", "11")).Position.Y)
	assert.Greater(t, nodeByID(t, res.Nodes, "i11").Position.Y, e.Config().UnitHeight)
}

func TestBuild_EdgeRoundTrip(t *testing.T) {
	e := testEngine()
	records := []models.Record{
		rec("A", map[string]any{"Name": "Pump", "Code": "X1", "Connections": []any{"Tank"}}),
		rec("B", map[string]any{"Name": "Tank", "Code": "X2"}),
	}

	res := e.Build(records, nil, Options{})
	require.Len(t, res.Edges, 1)
	edge := res.Edges[0]
	assert.Equal(t, "A", edge.Source)
	assert.Equal(t, "B", edge.Target)
	assert.Equal(t, "edge-1", edge.ID)
	assert.Equal(t, "step", edge.Type)
	assert.Equal(t, []string{"X2"}, res.Items[0].Connections)

	// Removing B drops the edge without any error.
	res = e.Build(records[:1], nil, Options{PreviousNodes: res.Nodes})
	assert.Empty(t, res.Edges)
	assert.Equal(t, 1, res.Stats.DroppedConnections)
}

func TestBuild_ConnectionShapes(t *testing.T) {
	res := testEngine().Build([]models.Record{
		rec("A", map[string]any{"Name": "Pump", "Code": "X1", "Connections": []any{
			map[string]any{"to": "Tank"},
			map[string]any{"toId": "X3"},
			"X2",
			"Nowhere",
		}}),
		rec("B", map[string]any{"Name": "Tank", "Code": "X2"}),
		rec("C", map[string]any{"Name": "Filter", "Code": "X3"}),
	}, nil, Options{})

	var targets []string
	for _, e := range res.Edges {
		assert.Equal(t, "A", e.Source)
		targets = append(targets, e.Target)
	}
	assert.Equal(t, []string{"B", "C", "B"}, targets)
	assert.Equal(t, 1, res.Stats.DroppedConnections)
}

func TestBuild_UniqueEdgeIDs(t *testing.T) {
	res := NewEngine(DefaultConfig(), nil).Build([]models.Record{
		rec("A", map[string]any{"Name": "A", "Code": "X1", "Connections": []any{"B", "B"}}),
		rec("B", map[string]any{"Name": "B", "Code": "X2", "Connections": []any{"A"}}),
	}, nil, Options{})

	require.Len(t, res.Edges, 3)
	seen := map[string]bool{}
	for _, e := range res.Edges {
		assert.False(t, seen[e.ID], "duplicate edge id %s", e.ID)
		seen[e.ID] = true
	}
}

func TestBuild_MalformedInputDoesNotPanic(t *testing.T) {
	records := []models.Record{
		{},
		{ID: "x", Fields: map[string]any{"Sequence": []any{}, "Type": []any{}, "Connections": 12.0, "x": "nope"}},
		{ID: "y", Fields: map[string]any{"Unit": map[string]any{"nested": true}, "Connections": []any{nil, map[string]any{}}}},
	}
	assert.NotPanics(t, func() {
		res := BuildDiagram(records, models.UnitArrangement{{}, nil}, Options{PreviousNodes: []models.Node{{ID: "x"}}})
		assert.Len(t, res.Items, 3)
	})
}

func TestBuild_FrameIDsDistinctForHyphenatedNames(t *testing.T) {
	records := []models.Record{
		rec("r1", map[string]any{"Name": "P1", "Unit": "A-B", "SubUnit": "C", "Sequence": 1.0}),
		rec("r2", map[string]any{"Name": "P2", "Unit": "A", "SubUnit": "B-C", "Sequence": 1.0}),
		rec("r3", map[string]any{"Name": "P3", "Unit": "A/B", "SubUnit": "C", "Sequence": 1.0}),
	}

	res := testEngine().Build(records, models.UnitArrangement{{"A-B", "A", "A/B"}}, Options{})

	seen := make(map[string]int)
	frames := 0
	for _, n := range res.Nodes {
		seen[n.ID]++
		if n.Type == models.NodeTypeSubUnitFrame {
			frames++
		}
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "node id %q", id)
	}
	assert.Equal(t, 3, frames)
	assert.NotEqual(t, SubUnitFrameID("A-B", "C"), SubUnitFrameID("A", "B-C"))
	nodeByID(t, res.Nodes, SubUnitFrameID("A/B", "C"))
}
