package models

// Record represents one row of the persistence store: an opaque id plus its field bag.
type Record struct {
	ID          string         `json:"id"`
	Fields      map[string]any `json:"fields"`
	CreatedTime string         `json:"createdTime,omitempty"`
}

// Field keys used in record field bags.
const (
	FieldName        = "Name"
	FieldCode        = "Code"
	FieldItemCode    = "Item Code"
	FieldCategory    = "Category"
	FieldType        = "Type"
	FieldUnit        = "Unit"
	FieldSubUnit     = "SubUnit"
	FieldSequence    = "Sequence"
	FieldNumber      = "Number"
	FieldSensorType  = "SensorType"
	FieldConnections = "Connections"
	FieldX           = "x"
	FieldY           = "y"
)

// NewRecord creates a record with a copy of fields.
func NewRecord(id string, fields map[string]any) Record {
	return Record{ID: id, Fields: CloneFields(fields)}
}

// CloneFields returns a shallow copy of a field bag. A nil bag yields an empty one.
func CloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Clone returns a copy of the record whose field bag can be mutated independently.
func (r Record) Clone() Record {
	return Record{ID: r.ID, Fields: CloneFields(r.Fields), CreatedTime: r.CreatedTime}
}
