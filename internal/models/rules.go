package models

// PaletteRules defines the YAML configuration for category renderers, edge styling
// and the initial Unit arrangement.
type PaletteRules struct {
	DefaultRenderer string          `json:"defaultRenderer" yaml:"default_renderer"`
	Renderers       []RendererRule  `json:"renderers" yaml:"renderers"`
	Edge            EdgeRule        `json:"edge" yaml:"edge"`
	Frames          FrameRule       `json:"frames" yaml:"frames"`
	Arrangement     UnitArrangement `json:"arrangement,omitempty" yaml:"arrangement,omitempty"`
}

// RendererRule maps an item Category to the node type the canvas draws it with.
type RendererRule struct {
	Category string `json:"category" yaml:"category"`
	NodeType string `json:"nodeType" yaml:"node_type"`
}

// EdgeRule sets how connectors are drawn.
type EdgeRule struct {
	Type        string  `json:"type" yaml:"type"`
	Animated    bool    `json:"animated" yaml:"animated"`
	Stroke      string  `json:"stroke,omitempty" yaml:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty" yaml:"stroke_width,omitempty"`
}

// FrameRule sets frame colors.
type FrameRule struct {
	UnitBackground    string `json:"unitBackground,omitempty" yaml:"unit_background,omitempty"`
	UnitBorder        string `json:"unitBorder,omitempty" yaml:"unit_border,omitempty"`
	SubUnitBackground string `json:"subUnitBackground,omitempty" yaml:"subunit_background,omitempty"`
	SubUnitBorder     string `json:"subUnitBorder,omitempty" yaml:"subunit_border,omitempty"`
}

// DefaultPaletteRules returns the rules used when no palette file is loaded.
func DefaultPaletteRules() *PaletteRules {
	return &PaletteRules{
		DefaultRenderer: NodeTypeGeneric,
		Renderers: []RendererRule{
			{Category: "Equipment", NodeType: "equipment"},
			{Category: "Inline Valve", NodeType: "valve"},
			{Category: "Pipe", NodeType: "pipe"},
			{Category: "Duct", NodeType: "duct"},
			{Category: "Instrument", NodeType: "instrument"},
			{Category: "Structure", NodeType: "structure"},
			{Category: "Electrical", NodeType: "electrical"},
		},
		Edge: EdgeRule{Type: "step", Stroke: "#4a4a4a", StrokeWidth: 2},
		Frames: FrameRule{
			UnitBackground:    "rgba(240, 244, 250, 0.4)",
			UnitBorder:        "2px solid #7a8ca8",
			SubUnitBackground: "rgba(255, 255, 255, 0.6)",
			SubUnitBorder:     "1px dashed #a0aec0",
		},
	}
}

// RendererFor returns the node type for a category, falling back to the default renderer.
func (r *PaletteRules) RendererFor(category string) string {
	for _, rule := range r.Renderers {
		if rule.Category == category {
			return rule.NodeType
		}
	}
	if r.DefaultRenderer != "" {
		return r.DefaultRenderer
	}
	return NodeTypeGeneric
}
