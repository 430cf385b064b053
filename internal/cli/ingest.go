package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/fpstore/internal/fs"
	"github.com/nickcecere/fpstore/internal/ingest"
	"github.com/nickcecere/fpstore/internal/ui"
)

var (
	ingestForce      bool
	ingestDryRun     bool
	ingestRecent     bool
	ingestExtensions []string
	ingestIgnore     []string
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Store every text file under a directory",
	Long: `Ingest text files in the specified directory (or current directory).

This command will:
1. Discover all text files in the directory, honouring .gitignore
2. Skip files whose content is unchanged since the last ingest
3. Split files into line-aligned chunks
4. Store each chunk as a record with its source location

Examples:
  # Ingest current directory
  fpstore ingest

  # Ingest a specific directory
  fpstore ingest ./docs

  # Re-ingest every file
  fpstore ingest --force

  # Ingest only specific extensions
  fpstore ingest --ext .go --ext .md

  # Preview what would be ingested
  fpstore ingest --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestForce, "force", "f", false, "re-ingest unchanged files")
	ingestCmd.Flags().BoolVarP(&ingestDryRun, "dry-run", "d", false, "preview without storing")
	ingestCmd.Flags().BoolVar(&ingestRecent, "recent", false, "also enter chunks in the recent index")
	ingestCmd.Flags().StringSliceVarP(&ingestExtensions, "ext", "e", nil, "file extensions to include (e.g., .go, .md)")
	ingestCmd.Flags().StringSliceVarP(&ingestIgnore, "ignore", "i", nil, "additional patterns to ignore")
}

// resolveDir returns the absolute form of path, which must be a directory.
func resolveDir(args []string) (string, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("path does not exist: %s", absPath)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", absPath)
	}
	return absPath, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	absPath, err := resolveDir(args)
	if err != nil {
		return err
	}

	log.Debug("Starting ingest",
		"path", absPath,
		"force", ingestForce,
		"dry-run", ingestDryRun,
		"recent", ingestRecent,
	)

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	ing := ws.Ingester(ingestRecent)

	// Dry run mode - just show what would be ingested
	if ingestDryRun {
		return runDryRun(cmd.Context(), out, ing, absPath)
	}

	ctx, cancel := signalContext(func() {
		fmt.Fprintln(out, "\nInterrupted, stopping after the current file...")
	})
	defer cancel()

	if !jsonOutput {
		fmt.Fprintln(out, ui.Header.Render("Ingesting "+filepath.Base(absPath)))
		fmt.Fprintf(out, "Path: %s\n\n", absPath)
	}

	lastUpdate := time.Now()
	p, err := ing.Ingest(ctx, ingest.IngestOptions{
		Path:           absPath,
		Extensions:     ingestExtensions,
		IgnorePatterns: ingestIgnore,
		Force:          ingestForce,
		OnProgress: func(p ingest.Progress) {
			if jsonOutput {
				return
			}
			// Throttle updates to every 100ms
			if time.Since(lastUpdate) < 100*time.Millisecond {
				return
			}
			lastUpdate = time.Now()

			// Clear line and print progress
			fmt.Fprintf(out, "\r\033[K")
			if p.TotalFiles > 0 {
				pct := float64(p.ProcessedFiles) / float64(p.TotalFiles) * 100
				fmt.Fprintf(out, "Progress: %d/%d files (%.0f%%) | Records: %d | %s",
					p.ProcessedFiles, p.TotalFiles, pct, p.StoredRecords,
					truncatePath(p.CurrentFile, 40))
			}
		},
	})

	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(out, ui.Warning.Render("Ingest cancelled"))
			return nil
		}
		return fmt.Errorf("ingest failed: %w", err)
	}

	if jsonOutput {
		return writeJSON(out, p)
	}

	// Clear progress line
	fmt.Fprintf(out, "\r\033[K")
	fmt.Fprintln(out, ui.Success.Render("Ingest complete!"))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Files:    %d (%d unchanged)\n", p.TotalFiles, p.SkippedFiles)
	fmt.Fprintf(out, "  Chunks:   %d\n", p.TotalChunks)
	fmt.Fprintf(out, "  Records:  %d\n", p.StoredRecords)
	if p.Errors > 0 {
		fmt.Fprintf(out, "  Errors:   %s\n", ui.Warning.Render(fmt.Sprint(p.Errors)))
	}
	fmt.Fprintf(out, "  Duration: %s\n", time.Since(p.StartTime).Round(time.Millisecond))
	return nil
}

// runDryRun shows what would be ingested without storing anything.
func runDryRun(ctx context.Context, out io.Writer, ing *ingest.Ingester, path string) error {
	fmt.Fprintln(out, ui.Header.Render("Dry Run - Preview"))
	fmt.Fprintf(out, "Path: %s\n\n", path)

	walker, err := ing.NewWalker(path, ingestExtensions, ingestIgnore)
	if err != nil {
		return err
	}

	var files []fs.FileInfo
	err = walker.Walk(ctx, func(fi fs.FileInfo) error {
		files = append(files, fi)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}

	stats := walker.Stats()

	// Show files by language
	byLang := make(map[string]int)
	var totalSize int64
	for _, f := range files {
		byLang[ui.Language(f.Path)]++
		totalSize += f.Size
	}

	fmt.Fprintln(out, "Files to ingest:")
	langs := make([]string, 0, len(byLang))
	for lang := range byLang {
		langs = append(langs, lang)
	}
	slices.Sort(langs)
	for _, lang := range langs {
		fmt.Fprintf(out, "  %-15s %d\n", lang+":", byLang[lang])
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Total files:   %d\n", len(files))
	fmt.Fprintf(out, "Total size:    %s\n", formatBytes(totalSize))
	fmt.Fprintf(out, "Skipped:       %d files, %d directories\n", stats.FilesSkipped, stats.DirsSkipped)

	if len(files) > 0 {
		fmt.Fprintln(out, "\nFirst 10 files:")
		for i, f := range files {
			if i >= 10 {
				fmt.Fprintf(out, "  ... and %d more\n", len(files)-10)
				break
			}
			fmt.Fprintf(out, "  %s (%s)\n", f.RelPath, formatBytes(f.Size))
		}
	}

	return nil
}

// truncatePath shortens a path for display.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}

// formatBytes formats bytes as human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
