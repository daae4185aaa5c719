package main

import (
	"fmt"

	"github.com/pid-editor/backend/internal/codegen"
	"github.com/spf13/cobra"
)

var codeFlags struct {
	category   string
	typeName   string
	unit       string
	subUnit    string
	sequence   int
	sensorType string
	fallback   bool
}

var codeCmd = &cobra.Command{
	Use:   "code",
	Short: "Print the code of a classification",
	Example: `  pidserver code --category Equipment --unit 1 --subunit 2 --sequence 3
  pidserver code --category Instrument --unit 2 --subunit 0 --sequence 1 --sensor-type "Pressure Gauge"`,
	Args: cobra.NoArgs,
	RunE: runCode,
}

func init() {
	f := codeCmd.Flags()
	f.StringVar(&codeFlags.category, "category", "", "item category (required)")
	f.StringVar(&codeFlags.typeName, "type", "", "item type")
	f.StringVar(&codeFlags.unit, "unit", "", "unit name")
	f.StringVar(&codeFlags.subUnit, "subunit", "", "subunit name")
	f.IntVar(&codeFlags.sequence, "sequence", 0, "sequence number (omit for none)")
	f.StringVar(&codeFlags.sensorType, "sensor-type", "", "sensor type for instruments")
	f.BoolVar(&codeFlags.fallback, "fallback", false, "retry with sequence 1 when the code is empty or 0")
	codeCmd.MarkFlagRequired("category")
}

func runCode(cmd *cobra.Command, args []string) error {
	c := codegen.Classification{
		Category:   codeFlags.category,
		Type:       codeFlags.typeName,
		Unit:       codeFlags.unit,
		SubUnit:    codeFlags.subUnit,
		SensorType: codeFlags.sensorType,
	}
	if cmd.Flags().Changed("sequence") {
		seq := codeFlags.sequence
		c.Sequence = &seq
	}

	code := codegen.GenerateCode(c)
	if codeFlags.fallback {
		code = codegen.GenerateWithFallback(c)
	}
	fmt.Fprintln(cmd.OutOrStdout(), code)
	return nil
}
