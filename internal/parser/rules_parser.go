// Package parser decodes the YAML palette rules and the natural-language parser's
// JSON replies.
package parser

import (
	"fmt"
	"io"
	"os"

	"github.com/pid-editor/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// ParsePaletteRules parses a YAML palette file: category renderers, edge and frame
// styling, and an optional initial Unit arrangement.
func ParsePaletteRules(filePath string) (*models.PaletteRules, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParsePaletteRulesFromReader(file)
}

// ParsePaletteRulesFromReader parses palette rules from an io.Reader. Fields left out
// of the file keep their default values.
func ParsePaletteRulesFromReader(r io.Reader) (*models.PaletteRules, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	rules := models.DefaultPaletteRules()
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, err
	}

	for i, rr := range rules.Renderers {
		if rr.Category == "" || rr.NodeType == "" {
			return nil, fmt.Errorf("renderer %d: category and node_type are required", i)
		}
	}
	return rules, nil
}

// MarshalPaletteRules encodes rules back to YAML.
func MarshalPaletteRules(rules *models.PaletteRules) ([]byte, error) {
	return yaml.Marshal(rules)
}
