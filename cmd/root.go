// Package cmd provides the command-line interface for sigforge.
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags shared by every subcommand
var (
	configFile string
	verbose    bool
	outputJSON bool
	noColor    bool
	quiet      bool
)

// NewRootCmd creates the sigforge root command with all subcommands.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sigforge",
		Short: "Generate and validate synthetic test events for detection rules",
		Long: `sigforge compiles detection rules, generates labeled synthetic log events
for them, validates every event against the compiled rule, and exports the
accepted cases as ready-to-run test suites for SIEM platforms.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default: sigforge.yaml discovery)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")

	root.AddCommand(newGenerateCmd())
	root.AddCommand(newBatchCmd())
	root.AddCommand(newPlatformsCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func outputAsJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
