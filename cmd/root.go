// Package cmd implements the CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/whaletop/whaletop/internal/config"
	"github.com/whaletop/whaletop/internal/version"
)

var (
	cfgFile       string
	verbose       bool
	cfg           *config.Config
	errConfigLoad error
)

var rootCmd = &cobra.Command{
	Use:   "whaletop",
	Short: "Terminal dashboard for Docker workloads",
	Long: `whaletop is a terminal dashboard for Docker workloads. It groups
containers by ownership (swarm stacks, compose projects, standalone
containers) into a live topology tree and keeps it reconciled against
the daemon on every poll.

It features:
  - Topology classification from swarm and compose labels
  - Tick-based reconciliation with graceful handling of daemon outages
  - Seekable, follow-capable per-container log views
  - Interactive shell sessions with guaranteed terminal restoration
  - Optional alerts on workload degradation via Shoutrrr`,
	Version: version.GetFullVersion(),
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		skipConfig := cmd.Name() == "init" || cmd.Name() == "help" || cmd.Name() == "version"
		if skipConfig {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			// Store the error; commands fail fast in their RunE handlers so
			// that help output still works with a broken config.
			errConfigLoad = err
			if verbose {
				fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
			}
		}

		if verbose && cfg != nil {
			fmt.Fprintf(os.Stderr, "Loaded configuration from: %s\n", cfg.ConfigFilePath)
		}

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// validateConfigOrExit returns the loaded config or the load error.
func validateConfigOrExit() (*config.Config, error) {
	if errConfigLoad != nil {
		return nil, fmt.Errorf("configuration required: %w", errConfigLoad)
	}
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}
