package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nickcecere/fpstore/internal/config"
	"github.com/nickcecere/fpstore/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Display the effective configuration as YAML, or the config file locations.

Examples:
  # Show current configuration
  fpstore config

  # Show config file paths
  fpstore config --path`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()

	if configShowPath {
		active := config.ConfigFilePath()
		if active == "" {
			active = "(none, using defaults)"
		}
		fmt.Fprintln(out, ui.SectionTitle.Render("Configuration Paths"))
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Global config: %s\n", config.GlobalConfigPath())
		fmt.Fprintf(out, "Local config:  .fpstorerc.yaml (searched from cwd upward)\n")
		fmt.Fprintf(out, "Active config: %s\n", active)
		fmt.Fprintf(out, "Data dir:      %s\n", cfg.Storage.DataDir)
		fmt.Fprintf(out, "Shards:        %s\n", cfg.ShardRoot())
		fmt.Fprintf(out, "Recent index:  %s\n", cfg.RecentPath())
		fmt.Fprintf(out, "Timeline:      %s\n", cfg.TimelinePath())
		fmt.Fprintf(out, "Catalog:       %s\n", cfg.CatalogPath())
		return nil
	}

	if jsonOutput {
		return writeJSON(out, cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = out.Write(data)
	return err
}
