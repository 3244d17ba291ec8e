package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sigforge/export"
)

// newPlatformsCmd creates the 'platforms' subcommand.
func newPlatformsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List the supported export platforms",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := export.DefaultRegistry().Names()
			if outputJSON {
				return outputAsJSON(names)
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}
