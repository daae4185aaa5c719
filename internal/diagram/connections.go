package diagram

import (
	"strings"

	"github.com/pid-editor/backend/internal/models"
)

// Resolver maps connection references to item codes using a Name -> Code table.
type Resolver struct {
	codeByName map[string]string
}

// NewResolver builds the Name -> Code table from items. Items lacking a Name or a Code
// are skipped; a later item with the same Name replaces an earlier one.
func NewResolver(items []models.Item) *Resolver {
	table := make(map[string]string, len(items))
	for _, it := range items {
		if it.Name == "" || it.Code == "" {
			continue
		}
		table[it.Name] = it.Code
	}
	return &Resolver{codeByName: table}
}

// Resolve returns the target code of a single connection. Names missing from the
// table are assumed to already be codes.
func (r *Resolver) Resolve(c models.Connection) (string, bool) {
	var code string
	switch c.Kind {
	case models.ConnectionText, models.ConnectionTo:
		code = r.lookup(c.Ref)
	case models.ConnectionToID:
		code = c.Ref
	default:
		return "", false
	}
	if code == "" {
		return "", false
	}
	return code, true
}

// ResolveAll resolves connections in order. Duplicates are kept; empty results are dropped.
func (r *Resolver) ResolveAll(conns []models.Connection) []string {
	if len(conns) == 0 {
		return nil
	}
	codes := make([]string, 0, len(conns))
	for _, c := range conns {
		if code, ok := r.Resolve(c); ok {
			codes = append(codes, code)
		}
	}
	return codes
}

func (r *Resolver) lookup(ref string) string {
	if code, ok := r.codeByName[ref]; ok {
		return code
	}
	return ref
}

// ParseConnection converts one raw reference into a Connection. Strings become text
// references; objects are read for "to" first, then "toId". Anything else is rejected.
func ParseConnection(v any) (models.Connection, bool) {
	switch val := v.(type) {
	case string:
		ref := strings.TrimSpace(val)
		if ref == "" {
			return models.Connection{}, false
		}
		return models.Connection{Kind: models.ConnectionText, Ref: ref}, true
	case models.Connection:
		return val, val.Ref != ""
	case map[string]any:
		if to := strings.TrimSpace(toString(val["to"])); to != "" {
			return models.Connection{Kind: models.ConnectionTo, Ref: to}, true
		}
		if id := strings.TrimSpace(toString(val["toId"])); id != "" {
			return models.Connection{Kind: models.ConnectionToID, Ref: id}, true
		}
	case map[string]string:
		if to := strings.TrimSpace(val["to"]); to != "" {
			return models.Connection{Kind: models.ConnectionTo, Ref: to}, true
		}
		if id := strings.TrimSpace(val["toId"]); id != "" {
			return models.Connection{Kind: models.ConnectionToID, Ref: id}, true
		}
	}
	return models.Connection{}, false
}

// ParseConnections converts the raw Connections field. A single string counts as one
// reference.
func ParseConnections(v any) []models.Connection {
	var raw []any
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		raw = val
	case []string:
		raw = make([]any, len(val))
		for i, s := range val {
			raw[i] = s
		}
	case []map[string]any:
		raw = make([]any, len(val))
		for i, m := range val {
			raw[i] = m
		}
	case []models.Connection:
		raw = make([]any, len(val))
		for i, c := range val {
			raw[i] = c
		}
	default:
		raw = []any{val}
	}

	conns := make([]models.Connection, 0, len(raw))
	for _, r := range raw {
		if c, ok := ParseConnection(r); ok {
			conns = append(conns, c)
		}
	}
	return conns
}
