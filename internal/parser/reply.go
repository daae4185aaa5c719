package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pid-editor/backend/internal/models"
)

// itemKeys are the field names an item reply may carry.
var itemKeys = []string{
	models.FieldName,
	models.FieldCategory,
	models.FieldType,
	models.FieldUnit,
	models.FieldSubUnit,
	models.FieldSequence,
	models.FieldNumber,
	models.FieldSensorType,
	models.FieldConnections,
}

// ParseItemReply decodes the JSON reply of the natural-language parser. The reply is
// either {"item": {...}, "explanation": "..."}, a bare item object, or
// {"message": "..."}. Markdown code fences around the JSON are tolerated.
func ParseItemReply(data []byte) (*models.ParseResult, error) {
	data = stripFences(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty reply")
	}

	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding reply: %w", err)
	}

	res := &models.ParseResult{
		Explanation: stringValue(raw["explanation"]),
		Message:     stringValue(raw["message"]),
	}

	if item, ok := raw["item"].(map[string]any); ok {
		res.Item = pickItemFields(item)
	} else if _, hasName := raw[models.FieldName]; hasName {
		res.Item = pickItemFields(raw)
	}

	if res.IsItem() {
		res.Message = ""
		return res, nil
	}
	if res.Message == "" {
		return nil, fmt.Errorf("reply carries neither an item nor a message")
	}
	return res, nil
}

func pickItemFields(src map[string]any) map[string]any {
	out := make(map[string]any, len(itemKeys))
	for _, k := range itemKeys {
		if v, ok := src[k]; ok && v != nil {
			out[k] = v
		}
	}
	return out
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func stripFences(data []byte) []byte {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return []byte(strings.TrimSpace(s))
}
