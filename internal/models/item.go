// Package models contains domain types for the P&ID editor backend.
package models

// Default grouping keys for items that carry no Unit or SubUnit.
const (
	DefaultUnit     = "No Unit"
	DefaultSubUnit  = "No SubUnit"
	DefaultCategory = "Equipment"
)

// Item is a fully normalized engineering entity (equipment, valve, instrument, pipe...).
// Connections holds resolved target codes.
type Item struct {
	ID          string   `json:"id"`
	Name        string   `json:"Name"`
	Code        string   `json:"Code"`
	Category    string   `json:"Category"`
	Type        string   `json:"Type"`
	Unit        string   `json:"Unit"`
	SubUnit     string   `json:"SubUnit"`
	Sequence    int      `json:"Sequence"`
	Number      int      `json:"Number"`
	SensorType  string   `json:"SensorType,omitempty"`
	Connections []string `json:"Connections,omitempty"`
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`

	// CodeGenerated is set when Code was derived rather than supplied.
	CodeGenerated bool `json:"-"`
}

// ConnectionKind tags the three shapes a connection reference can take.
type ConnectionKind int

const (
	// ConnectionText is a bare string, either a Name or a Code.
	ConnectionText ConnectionKind = iota
	// ConnectionTo is an object carrying a target Name in "to".
	ConnectionTo
	// ConnectionToID is an object carrying a target Code or id in "toId".
	ConnectionToID
)

// Connection is a single reference from one item to another.
type Connection struct {
	Kind ConnectionKind `json:"kind"`
	Ref  string         `json:"ref"`
}
