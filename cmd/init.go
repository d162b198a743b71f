package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/whaletop/whaletop/internal/templates"
)

var (
	force bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize whaletop configuration files",
	Long: `Init creates the configuration files for whaletop in the current
directory:
  - config.yaml (sample configuration file)
  - .env (environment variable template)

Run this once when setting up whaletop for the first time.`,
	Example: `  # Initialize in current directory
  whaletop init

  # Force overwrite existing files
  whaletop init --force`,
	RunE: func(_ *cobra.Command, _ []string) error {
		fmt.Println("🔧 Initializing whaletop...")

		files := map[string][]byte{
			"config.yaml": templates.ConfigYAML,
			".env":        templates.EnvFile,
		}

		for filename, content := range files {
			if _, err := os.Stat(filename); err == nil && !force {
				fmt.Printf("⚠️  Skipping %s (already exists, use --force to overwrite)\n", filename)
				continue
			}

			if err := os.WriteFile(filename, content, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", filename, err)
			}

			fmt.Printf("✅ Created %s\n", filename)
		}

		fmt.Println("\n🎉 Initialization complete!")
		fmt.Println("\n📝 Next steps:")
		fmt.Println("   1. Edit config.yaml (socket path, poll interval, label precedence)")
		fmt.Println("   2. Run 'whaletop snapshot' to check classification")
		fmt.Println("   3. Run 'whaletop dash' to start the dashboard")

		return nil
	},
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration files")
}
