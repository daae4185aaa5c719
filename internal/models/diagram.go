package models

// Node kinds emitted by the layout engine.
const (
	NodeTypeUnitFrame    = "unitFrame"
	NodeTypeSubUnitFrame = "subUnitFrame"
	NodeTypeGeneric      = "generic"
)

// Position is a 2D canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeStyle carries the box geometry and colors the renderer needs.
type NodeStyle struct {
	Width      float64 `json:"width,omitempty"`
	Height     float64 `json:"height,omitempty"`
	Background string  `json:"background,omitempty"`
	Border     string  `json:"border,omitempty"`
	ZIndex     int     `json:"zIndex,omitempty"`
}

// NodeData is the payload attached to a node. Frames only carry a label.
type NodeData struct {
	Label string `json:"label"`
	Item  *Item  `json:"item,omitempty"`
}

// Node is a frame or an item on the canvas.
type Node struct {
	ID         string    `json:"id"`
	Position   Position  `json:"position"`
	Data       NodeData  `json:"data"`
	Type       string    `json:"type"`
	Style      NodeStyle `json:"style"`
	Draggable  bool      `json:"draggable"`
	Selectable bool      `json:"selectable"`
}

// IsFrame reports whether the node is a Unit or SubUnit container.
func (n Node) IsFrame() bool {
	return n.Type == NodeTypeUnitFrame || n.Type == NodeTypeSubUnitFrame
}

// EdgeStyle is the stroke used to draw a connector.
type EdgeStyle struct {
	Stroke      string  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
}

// Edge is a directed link between two item node ids.
type Edge struct {
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	Target   string    `json:"target"`
	Type     string    `json:"type"`
	Animated bool      `json:"animated"`
	Style    EdgeStyle `json:"style"`
}

// UnitArrangement is the on-screen grid of Unit frames: rows of Unit names.
type UnitArrangement [][]string

// Clone returns a deep copy of the arrangement.
func (a UnitArrangement) Clone() UnitArrangement {
	out := make(UnitArrangement, len(a))
	for i, row := range a {
		out[i] = append([]string(nil), row...)
	}
	return out
}

// Contains reports whether unit appears in any row.
func (a UnitArrangement) Contains(unit string) bool {
	for _, row := range a {
		for _, u := range row {
			if u == unit {
				return true
			}
		}
	}
	return false
}

// Diagram is the complete state the editor renders.
type Diagram struct {
	Nodes       []Node          `json:"nodes"`
	Edges       []Edge          `json:"edges"`
	Items       []Item          `json:"items"`
	Arrangement UnitArrangement `json:"arrangement"`
}
