package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const configFileName = "pid-editor.config"

var rootCmd = &cobra.Command{
	Use:           "pidserver",
	Short:         "P&ID editor backend",
	Long:          `Serves the P&ID editor API: item codes, connection resolution and diagram layout over a record store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, codeCmd, layoutCmd)
	rootCmd.Version = fmt.Sprintf("%s (built %s)", Version, BuildTime)
}

// defaultConfigPath places the config file next to the executable.
func defaultConfigPath() string {
	exePath, err := os.Executable()
	if err != nil {
		return configFileName
	}
	return filepath.Join(filepath.Dir(exePath), configFileName)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
