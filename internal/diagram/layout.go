// Package diagram lays out normalized P&ID items into Unit/SubUnit frames and builds
// connection edges.
//
// The engine is a pure transform: it reads records, the Unit arrangement and the
// previous node list, and returns a fresh node/edge list. Positions already assigned
// to an item survive reruns unless its Unit/SubUnit changes or a reposition is
// requested.
package diagram

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/google/uuid"
	"github.com/pid-editor/backend/internal/models"
)

// Config holds the canvas geometry.
type Config struct {
	UnitWidth    float64
	UnitHeight   float64
	Gutter       float64
	ItemWidth    float64
	ItemGap      float64
	LanePadding  float64
	SubUnitLanes int
}

// DefaultConfig returns the standard canvas geometry.
func DefaultConfig() Config {
	return Config{
		UnitWidth:    2400,
		UnitHeight:   1800,
		Gutter:       200,
		ItemWidth:    120,
		ItemGap:      40,
		LanePadding:  40,
		SubUnitLanes: 9,
	}
}

// LaneHeight is the vertical space reserved for one SubUnit lane.
func (c Config) LaneHeight() float64 {
	lanes := c.SubUnitLanes
	if lanes <= 0 {
		lanes = 9
	}
	return c.UnitHeight / float64(lanes)
}

// Step is the horizontal advance between two first-time placed items.
func (c Config) Step() float64 {
	return c.ItemWidth + c.ItemGap
}

// Options control a single layout run.
type Options struct {
	// PreviousNodes is the current diagram; it seeds the position cache.
	PreviousNodes []models.Node
	// Reposition lists item ids whose position must be recomputed.
	Reposition map[string]bool
	// RepositionAll recomputes every item position.
	RepositionAll bool
}

// Stats summarizes where positions came from in a run.
type Stats struct {
	Reused             int `json:"reused"`
	Persisted          int `json:"persisted"`
	Placed             int `json:"placed"`
	DroppedConnections int `json:"droppedConnections"`
}

// Result is the output of Build.
type Result struct {
	Nodes       []models.Node          `json:"nodes"`
	Edges       []models.Edge          `json:"edges"`
	Items       []models.Item          `json:"items"`
	Arrangement models.UnitArrangement `json:"arrangement"`
	Stats       Stats                  `json:"stats"`
}

// Diagram converts the result into the diagram shape served to clients.
func (r *Result) Diagram() models.Diagram {
	return models.Diagram{
		Nodes:       r.Nodes,
		Edges:       r.Edges,
		Items:       r.Items,
		Arrangement: r.Arrangement,
	}
}

// Engine lays out items. It holds no state between runs.
type Engine struct {
	cfg     Config
	palette *models.PaletteRules
	newID   func() string
}

// NewEngine creates an engine. A nil palette uses the default rules.
func NewEngine(cfg Config, palette *models.PaletteRules) *Engine {
	if palette == nil {
		palette = models.DefaultPaletteRules()
	}
	return &Engine{
		cfg:     cfg,
		palette: palette,
		newID:   uuid.NewString,
	}
}

// WithIDGenerator replaces the edge id generator.
func (e *Engine) WithIDGenerator(fn func() string) *Engine {
	cp := *e
	cp.newID = fn
	return &cp
}

// Config returns the engine geometry.
func (e *Engine) Config() Config {
	return e.cfg
}

// BuildDiagram runs the default engine.
func BuildDiagram(records []models.Record, arrangement models.UnitArrangement, opts Options) *Result {
	return NewEngine(DefaultConfig(), nil).Build(records, arrangement, opts)
}

type laneKey struct {
	unit    string
	subUnit string
}

type lane struct {
	key    laneKey
	origin models.Position
	bounds rect
	items  []int
}

type rect struct {
	x, y, w, h float64
}

func (r rect) contains(p models.Position) bool {
	return p.X >= r.x && p.X < r.x+r.w && p.Y >= r.y && p.Y < r.y+r.h
}

// Build normalizes records, lays them out and resolves their connections.
func (e *Engine) Build(records []models.Record, arrangement models.UnitArrangement, opts Options) *Result {
	items := Normalize(records)
	arr := RepairArrangement(arrangement, items)

	groups := make(map[string]map[string][]int)
	for i, it := range items {
		if groups[it.Unit] == nil {
			groups[it.Unit] = make(map[string][]int)
		}
		groups[it.Unit][it.SubUnit] = append(groups[it.Unit][it.SubUnit], i)
	}

	frames, lanes := e.frames(arr, groups)

	res := &Result{
		Items:       items,
		Arrangement: arr,
	}
	positions := e.place(items, lanes, opts, &res.Stats)

	nodes := make([]models.Node, 0, len(frames)+len(items))
	nodes = append(nodes, frames...)
	for i := range items {
		it := items[i]
		nodes = append(nodes, models.Node{
			ID:       it.ID,
			Position: positions[i],
			Data: models.NodeData{
				Label: fmt.Sprintf("%s - %s", it.Code, it.Name),
				Item:  &it,
			},
			Type:       e.palette.RendererFor(it.Category),
			Style:      models.NodeStyle{Width: e.cfg.ItemWidth, Height: e.cfg.ItemWidth, ZIndex: 2},
			Draggable:  true,
			Selectable: true,
		})
	}
	res.Nodes = nodes
	res.Edges = e.edges(items, &res.Stats)
	return res
}

// UnitFrameID returns the node id of a Unit frame.
func UnitFrameID(unit string) string {
	return "unit-" + url.PathEscape(unit)
}

// SubUnitFrameID returns the node id of a SubUnit frame. Both names are escaped so that
// distinct (Unit, SubUnit) pairs never share an id.
func SubUnitFrameID(unit, subUnit string) string {
	return "subunit-" + url.PathEscape(unit) + "/" + url.PathEscape(subUnit)
}

// frames emits Unit and SubUnit frames for every arranged Unit that has items.
func (e *Engine) frames(arr models.UnitArrangement, groups map[string]map[string][]int) ([]models.Node, []*lane) {
	var (
		nodes   []models.Node
		lanes   []*lane
		emitted = make(map[string]bool)
	)
	laneHeight := e.cfg.LaneHeight()
	style := e.palette.Frames

	for row, units := range arr {
		for col, unit := range units {
			subs, ok := groups[unit]
			if !ok || emitted[unit] {
				continue
			}
			emitted[unit] = true

			ux := float64(col) * (e.cfg.UnitWidth + e.cfg.Gutter)
			uy := float64(row) * (e.cfg.UnitHeight + e.cfg.Gutter)
			nodes = append(nodes, models.Node{
				ID:       UnitFrameID(unit),
				Position: models.Position{X: ux, Y: uy},
				Data:     models.NodeData{Label: unit},
				Type:     models.NodeTypeUnitFrame,
				Style: models.NodeStyle{
					Width:      e.cfg.UnitWidth,
					Height:     e.cfg.UnitHeight,
					Background: style.UnitBackground,
					Border:     style.UnitBorder,
				},
			})

			names := make([]string, 0, len(subs))
			for name := range subs {
				names = append(names, name)
			}
			sortSubUnits(names)

			for i, name := range names {
				sy := uy + float64(i)*laneHeight
				nodes = append(nodes, models.Node{
					ID:       SubUnitFrameID(unit, name),
					Position: models.Position{X: ux, Y: sy},
					Data:     models.NodeData{Label: name},
					Type:     models.NodeTypeSubUnitFrame,
					Style: models.NodeStyle{
						Width:      e.cfg.UnitWidth,
						Height:     laneHeight,
						Background: style.SubUnitBackground,
						Border:     style.SubUnitBorder,
						ZIndex:     1,
					},
				})
				lanes = append(lanes, &lane{
					key:    laneKey{unit: unit, subUnit: name},
					origin: models.Position{X: ux + e.cfg.LanePadding, Y: sy + e.cfg.LanePadding},
					bounds: rect{x: ux, y: sy, w: e.cfg.UnitWidth, h: laneHeight},
					items:  subs[name],
				})
			}
		}
	}
	return nodes, lanes
}

// place assigns a position to every item. Kept positions come from the cache or the
// item's persisted x/y; the rest are placed left to right in their lane after the
// rightmost kept item.
func (e *Engine) place(items []models.Item, lanes []*lane, opts Options, stats *Stats) []models.Position {
	cache := NewPositionCache(opts.PreviousNodes)
	positions := make([]models.Position, len(items))
	step := e.cfg.Step()

	for _, ln := range lanes {
		order := append([]int(nil), ln.items...)
		sort.SliceStable(order, func(a, b int) bool {
			ia, ib := items[order[a]], items[order[b]]
			if ia.Sequence != ib.Sequence {
				return ia.Sequence < ib.Sequence
			}
			return ia.Name < ib.Name
		})

		cursor := ln.origin.X
		var pending []int
		for _, idx := range order {
			it := items[idx]
			force := opts.RepositionAll || opts.Reposition[it.ID]
			pos, src := cache.Resolve(it, force)
			switch src {
			case SourceCache:
				stats.Reused++
			case SourcePersisted:
				stats.Persisted++
			default:
				pending = append(pending, idx)
				continue
			}
			positions[idx] = pos
			if ln.bounds.contains(pos) && pos.X+step > cursor {
				cursor = pos.X + step
			}
		}

		for _, idx := range pending {
			positions[idx] = models.Position{X: cursor, Y: ln.origin.Y}
			cursor += step
			stats.Placed++
		}
	}
	return positions
}

// edges links each item to the nodes its connection codes resolve to. Codes not
// present among the current items are dropped.
func (e *Engine) edges(items []models.Item, stats *Stats) []models.Edge {
	nodeByCode := make(map[string]string, len(items))
	for _, it := range items {
		if it.Code != "" {
			nodeByCode[it.Code] = it.ID
		}
	}

	edgeStyle := e.palette.Edge
	edges := make([]models.Edge, 0)
	for _, it := range items {
		for _, code := range it.Connections {
			target, ok := nodeByCode[code]
			if !ok {
				stats.DroppedConnections++
				continue
			}
			edges = append(edges, models.Edge{
				ID:       e.newID(),
				Source:   it.ID,
				Target:   target,
				Type:     edgeStyle.Type,
				Animated: edgeStyle.Animated,
				Style: models.EdgeStyle{
					Stroke:      edgeStyle.Stroke,
					StrokeWidth: edgeStyle.StrokeWidth,
				},
			})
		}
	}
	return edges
}
