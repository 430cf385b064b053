package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/fpstore/internal/ingest"
	"github.com/nickcecere/fpstore/internal/ui"
	"github.com/nickcecere/fpstore/internal/watcher"
	"github.com/nickcecere/fpstore/internal/workspace"
)

var (
	watchNoInitial bool
	watchRecent    bool
	watchDebounce  time.Duration
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch for file changes and auto-ingest",
	Long: `Watch a directory for file changes and ingest modified files.

This command first ingests the directory (unless --no-initial is specified),
then watches for changes. A changed file is re-chunked and stored again; a
deleted file is forgotten by the catalog while its records stay in the store.

Examples:
  # Watch current directory
  fpstore watch

  # Watch a specific directory
  fpstore watch ./docs

  # Skip initial sync (assumes already ingested)
  fpstore watch --no-initial`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatchCmd,
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoInitial, "no-initial", false, "skip initial ingest")
	watchCmd.Flags().BoolVar(&watchRecent, "recent", false, "also enter chunks in the recent index")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "delay before processing a burst of changes")
	watchCmd.Flags().StringSliceVarP(&ingestExtensions, "ext", "e", nil, "file extensions to include (e.g., .go, .md)")
	watchCmd.Flags().StringSliceVarP(&ingestIgnore, "ignore", "i", nil, "additional patterns to ignore")
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	absPath, err := resolveDir(args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(func() {
		fmt.Fprintln(out, "\nShutting down...")
	})
	defer cancel()

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	ing := ws.Ingester(watchRecent)

	// Perform initial sync unless --no-initial is set
	if !watchNoInitial {
		fmt.Fprintln(out, ui.Header.Render("Initial Ingest"))
		fmt.Fprintf(out, "Path: %s\n\n", absPath)

		stopSpinner := make(chan struct{})
		spinnerDone := make(chan struct{})
		go showSpinner(out, "Ingesting files", stopSpinner, spinnerDone)

		p, err := ing.Ingest(ctx, ingest.IngestOptions{
			Path:           absPath,
			Extensions:     ingestExtensions,
			IgnorePatterns: ingestIgnore,
		})

		close(stopSpinner)
		<-spinnerDone

		if err != nil {
			if ctx.Err() != nil {
				return nil // User cancelled
			}
			return fmt.Errorf("initial ingest failed: %w", err)
		}
		fmt.Fprintf(out, "Initial ingest complete: %d files, %d records\n\n", p.TotalFiles, p.StoredRecords)
	}

	w, err := newWatcher(ws, absPath, watchRecent, watchDebounce)
	if err != nil {
		return err
	}

	// Start watching
	fmt.Fprintln(out, ui.Header.Render("Watching for Changes"))
	fmt.Fprintf(out, "Directory: %s\n", absPath)
	fmt.Fprintln(out, "Press Ctrl+C to stop.")
	fmt.Fprintln(out)

	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// newWatcher creates a watcher feeding a workspace ingester.
func newWatcher(ws *workspace.Workspace, root string, withRecent bool, debounce time.Duration) (*watcher.Watcher, error) {
	w, err := watcher.New(
		root,
		ws.Ingester(withRecent),
		watcher.WithDebounceTime(debounce),
		watcher.WithExtensions(ingestExtensions),
		watcher.WithIgnorePatterns(ingestIgnore),
		watcher.WithEventCallback(func(event, path string) {
			log.Info("File event", "event", event, "path", path)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return w, nil
}

// startBackgroundWatcher watches root until ctx is cancelled.
func startBackgroundWatcher(ctx context.Context, ws *workspace.Workspace, root string) {
	// Wait a bit before starting to let the MCP server initialize
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
	}

	log.Info("Starting background file watcher", "path", root)

	w, err := newWatcher(ws, root, false, time.Second)
	if err != nil {
		log.Error("Failed to create watcher", "error", err)
		return
	}

	// Start watching (blocks until context is cancelled)
	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		log.Error("Watcher error", "error", err)
	}
}

// showSpinner displays an animated spinner until stopCh is closed.
func showSpinner(out io.Writer, message string, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	defer close(doneCh)

	i := 0
	for {
		select {
		case <-stopCh:
			// Clear spinner line
			fmt.Fprint(out, "\r\033[2K")
			return
		case <-ticker.C:
			fmt.Fprintf(out, "\r%s %s", ui.Highlight.Render(frames[i]), message)
			i = (i + 1) % len(frames)
		}
	}
}
