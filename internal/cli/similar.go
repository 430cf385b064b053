package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/fpstore/internal/similarity"
)

var (
	similarMethod    string
	similarThreshold float64
	similarTolerance float64
	similarLimit     int
	similarContext   int
	similarContent   bool
)

// similarCmd ranks stored texts against a query.
var similarCmd = &cobra.Command{
	Use:   "similar <query>",
	Short: "Find stored texts similar to a query",
	Long: `Rank stored texts by similarity to a query.

Candidates are gathered from a fingerprint range scan around the query, the
catalog's nearest fingerprints and the recent index, then scored:

  numeric  closeness of the fingerprints
  text     overlap of the character sets
  hybrid   weighted mix of numeric, text and edit-distance scores

Examples:
  # Hybrid ranking (default)
  fpstore similar "hello wrld"

  # Text ranking with a minimum score
  fpstore similar "hello wrld" --method text --threshold 0.5

  # Show ingested chunks with highlighting and surrounding lines
  fpstore similar "func main" -c --context 3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSimilar,
}

func init() {
	similarCmd.Flags().StringVar(&similarMethod, "method", "", "scoring method: numeric, text or hybrid (default from config)")
	similarCmd.Flags().Float64Var(&similarThreshold, "threshold", 0, "minimum score between 0 and 1")
	similarCmd.Flags().Float64VarP(&similarTolerance, "tolerance", "t", 0, "fingerprint distance for candidates (default from config)")
	similarCmd.Flags().IntVarP(&similarLimit, "limit", "n", 0, "maximum number of results (default from config)")
	similarCmd.Flags().IntVar(&similarContext, "context", 0, "lines of source context to show")
	similarCmd.Flags().BoolVarP(&similarContent, "content", "c", false, "show highlighted content of ingested chunks")
}

func runSimilar(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	opts := ws.SearchOptions()
	if similarMethod != "" {
		opts.Method = similarity.Method(similarMethod)
	}
	if cmd.Flags().Changed("threshold") {
		opts.Threshold = similarThreshold
	}
	if cmd.Flags().Changed("tolerance") {
		opts.Tolerance = similarTolerance
	}
	if similarLimit > 0 {
		opts.Limit = similarLimit
	}
	if cmd.Flags().Changed("context") {
		opts.ContextLines = similarContext
	}

	query := queryArg(args)
	log.Debug("Starting similarity search",
		"query", query,
		"method", opts.Method,
		"threshold", opts.Threshold,
		"limit", opts.Limit,
	)

	results, err := ws.Searcher().Similar(cmd.Context(), query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if jsonOutput {
		return writeJSON(out, results)
	}
	printResults(out, results, ws.Encoder.DecimalPlaces(), true, similarContent)
	return nil
}
