// Package cli implements the command-line interface for fpstore.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nickcecere/fpstore/internal/config"
	"github.com/nickcecere/fpstore/internal/ui"
	"github.com/nickcecere/fpstore/internal/workspace"
)

var (
	// Version information set at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile    string
	debug      bool
	logFormat  string
	jsonOutput bool
)

// SetVersionInfo sets the version information from build flags.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fpstore",
	Short: "Fingerprint-sharded text store",
	Long: `fpstore stores texts under a pair of numeric fingerprints and finds them
again by exact fingerprint, by fingerprint range or by similarity.

Every text is written to two digit-sharded directory trees, one per
fingerprint. A bounded index keeps pointers to the most recent saves, and
every query is recorded in a timeline.

Examples:
  # Fingerprint a text without storing it
  fpstore encode "hello world"

  # Store a text
  fpstore save "hello world" --meta source=notes

  # Find texts similar to a query
  fpstore similar "hello wrld"

  # Store every text file under a directory
  fpstore ingest ./docs`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Set up logging based on flags
		ui.SetDebug(debug)
		if debug {
			log.Debug("Debug logging enabled")
		}
		if err := ui.SetFormat(logFormat); err != nil {
			return err
		}

		// Load configuration
		if err := config.Load(cfgFile); err != nil {
			log.Warn("Failed to load config", "error", err)
		}

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Initialize UI styles and logger
	ui.InitLogger()

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/fpstore/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", ui.FormatText, "log format: text, json or logfmt")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output results as JSON")

	// Bind flags to viper
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	// Add subcommands
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(rangeCmd)
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "fpstore %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

// openWorkspace opens the store described by the loaded configuration.
func openWorkspace() (*workspace.Workspace, error) {
	ws, err := workspace.Open(config.Get())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return ws, nil
}

// signalContext returns a context cancelled on interrupt.
func signalContext(onSignal func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	// Handle interrupt signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			if onSignal != nil {
				onSignal()
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// queryArg joins positional arguments into one query text.
func queryArg(args []string) string {
	return strings.Join(args, " ")
}

// oneLine flattens text for single-line display.
func oneLine(text string, maxLen int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if maxLen > 3 && len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return text
}
