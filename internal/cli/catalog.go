package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/fpstore/internal/ui"
)

var errCatalogDisabled = errors.New("catalog is disabled or could not be opened (see storage.catalog)")

// catalogCmd groups catalog maintenance.
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Maintain the fingerprint catalog",
	Long: `The catalog is a SQLite index over the shard trees. It accelerates range
scans and nearest-fingerprint queries and remembers which source files were
ingested. The shard trees remain the source of truth; the catalog can be
rebuilt from them at any time.`,
}

var catalogRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-register every record file of the shard trees",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if ws.Catalog == nil {
			return errCatalogDisabled
		}

		stopSpinner := make(chan struct{})
		spinnerDone := make(chan struct{})
		if !jsonOutput {
			go showSpinner(out, "Rebuilding catalog", stopSpinner, spinnerDone)
		} else {
			close(spinnerDone)
		}

		n, err := ws.Catalog.Rebuild(ws.Shards)
		if err == nil {
			ws.Shards.SyncRangeIndex()
		}

		close(stopSpinner)
		<-spinnerDone

		if err != nil {
			return fmt.Errorf("rebuild failed: %w", err)
		}
		if jsonOutput {
			return writeJSON(out, map[string]int{"files": n})
		}
		fmt.Fprintln(out, ui.Success.Render(fmt.Sprintf("Registered %d record files", n)))
		return nil
	},
}

var catalogSourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List ingested source files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if ws.Catalog == nil {
			return errCatalogDisabled
		}

		sources, err := ws.Catalog.ListSources()
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(out, sources)
		}
		if len(sources) == 0 {
			fmt.Fprintln(out, "No ingested sources.")
			return nil
		}
		for _, s := range sources {
			fmt.Fprintf(out, "%s %s %s\n",
				ui.FilePath.Render(s.Path),
				ui.Dim.Render(fmt.Sprintf("%d records, %s", s.Records, formatBytes(s.Size))),
				ui.Dim.Render(formatTime(s.IngestedAt)),
			)
		}
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogRebuildCmd)
	catalogCmd.AddCommand(catalogSourcesCmd)
}
