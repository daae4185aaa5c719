package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pid-editor/backend/internal/config"
	"github.com/pid-editor/backend/internal/diagram"
	"github.com/pid-editor/backend/internal/models"
	"github.com/pid-editor/backend/internal/parser"
	"github.com/spf13/cobra"
)

var layoutFlags struct {
	items       string
	arrangement string
	palette     string
	config      string
}

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Lay out items from a JSON file and print the diagram",
	Long: `Reads a JSON array of records ({"id": ..., "fields": {...}}) or plain field objects,
lays them out and prints {nodes, edges, items, arrangement} as JSON.`,
	Args: cobra.NoArgs,
	RunE: runLayout,
}

func init() {
	f := layoutCmd.Flags()
	f.StringVar(&layoutFlags.items, "items", "", "JSON file with item records (required)")
	f.StringVar(&layoutFlags.arrangement, "arrangement", "", "JSON file with the unit arrangement ([[unit,...],...])")
	f.StringVar(&layoutFlags.palette, "palette", "", "YAML palette rules")
	f.StringVar(&layoutFlags.config, "config", "", "XML config file for layout geometry")
	layoutCmd.MarkFlagRequired("items")
}

func runLayout(cmd *cobra.Command, args []string) error {
	records, err := readRecords(layoutFlags.items)
	if err != nil {
		return err
	}

	var arrangement models.UnitArrangement
	if layoutFlags.arrangement != "" {
		data, err := os.ReadFile(layoutFlags.arrangement)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &arrangement); err != nil {
			return fmt.Errorf("parsing arrangement: %w", err)
		}
	}

	palette := models.DefaultPaletteRules()
	if layoutFlags.palette != "" {
		if palette, err = parser.ParsePaletteRules(layoutFlags.palette); err != nil {
			return fmt.Errorf("parsing palette: %w", err)
		}
		if arrangement == nil {
			arrangement = palette.Arrangement
		}
	}

	geometry := diagram.DefaultConfig()
	if layoutFlags.config != "" {
		cfg, err := config.LoadConfig(layoutFlags.config)
		if err != nil {
			return err
		}
		geometry = cfg.LayoutGeometry()
	}

	res := diagram.NewEngine(geometry, palette).Build(records, arrangement, diagram.Options{})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res.Diagram())
}

// readRecords accepts either records with ids or bare field objects.
func readRecords(path string) ([]models.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing items: %w", err)
	}

	records := make([]models.Record, 0, len(raw))
	for i, obj := range raw {
		if fields, ok := obj["fields"].(map[string]any); ok {
			id, _ := obj["id"].(string)
			records = append(records, models.NewRecord(id, fields))
			continue
		}
		records = append(records, models.NewRecord(fmt.Sprintf("item-%d", i+1), obj))
	}
	return records, nil
}
