package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whaletop/whaletop/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "whaletop", version.GetFullVersion())
	},
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.AddCommand(versionCmd)
}
