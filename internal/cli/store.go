package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nickcecere/fpstore/internal/fingerprint"
	fsutil "github.com/nickcecere/fpstore/internal/fs"
	"github.com/nickcecere/fpstore/internal/search"
	"github.com/nickcecere/fpstore/internal/ui"
)

var (
	saveMeta   []string
	saveDirect bool

	getRaw bool

	lookupValue float64
	lookupSide  string
	lookupLimit int

	rangeTolerance float64
	rangeLimit     int
)

// encodeCmd fingerprints text without storing it.
var encodeCmd = &cobra.Command{
	Use:   "encode <text>",
	Short: "Print the fingerprint of a text",
	Long: `Compute the upper and lower fingerprint of a text without storing it.

Examples:
  fpstore encode "hello world"
  fpstore encode hello world --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEncode,
}

// saveCmd stores text.
var saveCmd = &cobra.Command{
	Use:   "save <text>",
	Short: "Store a text",
	Long: `Store a text in both shard trees and enter it in the recent index.

Examples:
  # Store with metadata
  fpstore save "hello world" --meta source=notes --meta lang=en

  # Write the shard files only, bypassing the recent index
  fpstore save "hello world" --direct`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSave,
}

// getCmd shows one record file.
var getCmd = &cobra.Command{
	Use:   "get <record-file>",
	Short: "Show a stored record",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

// lookupCmd finds records by fingerprint bucket.
var lookupCmd = &cobra.Command{
	Use:   "lookup [text]",
	Short: "Find records with the same fingerprint",
	Long: `Find stored records whose fingerprint shares the leading digits of a text's
fingerprint, or of a given value.

Examples:
  # Look up by text
  fpstore lookup "hello world"

  # Look up a value on the lower tree
  fpstore lookup --value 2.525666 --side lower`,
	RunE: runLookup,
}

// rangeCmd scans for records within a fingerprint tolerance.
var rangeCmd = &cobra.Command{
	Use:   "range <text>",
	Short: "Find records whose fingerprint lies near a text's",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRange,
}

func init() {
	saveCmd.Flags().StringArrayVarP(&saveMeta, "meta", "m", nil, "metadata as key=value (repeatable)")
	saveCmd.Flags().BoolVar(&saveDirect, "direct", false, "write shard files only, skip the recent index")

	getCmd.Flags().BoolVar(&getRaw, "raw", false, "print the markdown without rendering")

	lookupCmd.Flags().Float64Var(&lookupValue, "value", 0, "fingerprint value to look up instead of text")
	lookupCmd.Flags().StringVar(&lookupSide, "side", string(fingerprint.SideUpper), "tree for --value lookups: upper or lower")
	lookupCmd.Flags().IntVarP(&lookupLimit, "limit", "n", 0, "maximum number of results (default from config)")

	rangeCmd.Flags().Float64VarP(&rangeTolerance, "tolerance", "t", 0, "fingerprint distance (default from config)")
	rangeCmd.Flags().IntVarP(&rangeLimit, "limit", "n", 0, "maximum number of results (default from config)")
}

func runEncode(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	text := queryArg(args)
	pair, symbols := ws.Encoder.Pair(text)

	if jsonOutput {
		return writeJSON(out, map[string]any{
			"text":        text,
			"fingerprint": pair,
			"symbols":     symbols,
		})
	}

	places := ws.Encoder.DecimalPlaces()
	fmt.Fprintf(out, "%s %s\n", ui.Dim.Render("Text:   "), oneLine(text, 80))
	fmt.Fprintf(out, "%s %s\n", ui.Dim.Render("Upper:  "), ui.UpperSide.Render(fingerprint.FormatString(pair.Upper, places)))
	fmt.Fprintf(out, "%s %s\n", ui.Dim.Render("Lower:  "), ui.LowerSide.Render(fingerprint.FormatString(pair.Lower, places)))
	fmt.Fprintf(out, "%s %d\n", ui.Dim.Render("Symbols:"), len(symbols))
	return nil
}

// parseMeta turns key=value pairs into a metadata map.
func parseMeta(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q (want key=value)", p)
		}
		meta[k] = v
	}
	return meta, nil
}

func runSave(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	meta, err := parseMeta(saveMeta)
	if err != nil {
		return err
	}

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	text := queryArg(args)
	places := ws.Encoder.DecimalPlaces()

	if saveDirect {
		put, err := ws.Shards.Put(text, meta)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(out, put)
		}
		fmt.Fprintln(out, ui.Success.Render("Stored record "+put.Record.ID))
		fmt.Fprintf(out, "  %s\n", ui.FormatPair(put.Fingerprint, places))
		fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("upper:"), ui.FilePath.Render(put.UpperPath))
		fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("lower:"), ui.FilePath.Render(put.LowerPath))
		return nil
	}

	res, err := ws.Hybrid.Save(text, meta)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(out, res)
	}
	fmt.Fprintln(out, ui.Success.Render("Stored record "+res.RecordID))
	fmt.Fprintf(out, "  %s\n", ui.FormatPair(res.Fingerprint, places))
	fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("entry:"), res.Entry.ID)
	fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("upper:"), ui.FilePath.Render(res.UpperPath))
	fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("lower:"), ui.FilePath.Render(res.LowerPath))
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	rec, ok := ws.Shards.GetByPath(path)
	if !ok {
		return fmt.Errorf("no readable record at %s", path)
	}

	if jsonOutput {
		return writeJSON(out, rec)
	}

	md := ui.RecordMarkdown(rec)
	if getRaw {
		_, err := io.WriteString(out, md)
		return err
	}

	rendered, err := ui.RenderMarkdown(md)
	if err != nil {
		// Fallback to raw output if rendering fails
		rendered = md
	}
	fmt.Fprint(out, rendered)

	if source, start, end, ok := fsutil.ChunkLocation(rec.Metadata); ok {
		fmt.Fprintln(out, ui.FormatSource(source, start, end))
		fmt.Fprint(out, ui.HighlightCode(rec.Text, source, start))
	}
	return nil
}

func runLookup(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	limit := lookupLimit
	if limit <= 0 {
		limit = ws.Config.Search.Limit
	}

	if len(args) == 0 {
		if !cmd.Flags().Changed("value") {
			return fmt.Errorf("text or --value is required")
		}
		side, err := fingerprint.ParseSide(lookupSide)
		if err != nil {
			return err
		}
		records := ws.Shards.FindByFingerprint(lookupValue, side, limit)
		if jsonOutput {
			return writeJSON(out, records)
		}
		results := make([]search.Result, 0, len(records))
		for _, rec := range records {
			results = append(results, search.Result{Record: rec, Path: rec.Path, Side: side})
		}
		printResults(out, results, ws.Encoder.DecimalPlaces(), false, false)
		return nil
	}

	opts := ws.SearchOptions()
	opts.Limit = limit
	results, err := ws.Searcher().Exact(cmd.Context(), queryArg(args), opts)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(out, results)
	}
	printResults(out, results, ws.Encoder.DecimalPlaces(), false, false)
	return nil
}

func runRange(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	opts := ws.SearchOptions()
	if rangeLimit > 0 {
		opts.Limit = rangeLimit
	}
	if cmd.Flags().Changed("tolerance") {
		opts.Tolerance = rangeTolerance
	}

	results, err := ws.Searcher().Range(cmd.Context(), queryArg(args), opts)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(out, results)
	}
	printResults(out, results, ws.Encoder.DecimalPlaces(), false, false)
	return nil
}

// printResults formats query results. Scored results show their score
// breakdown, others their fingerprint distance.
func printResults(out io.Writer, results []search.Result, places int, scored, content bool) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return
	}
	fmt.Fprintf(out, "Found %d results:\n\n", len(results))

	for i, r := range results {
		label := ui.FilePath.Render(r.Path)
		source, start, end, chunked := fsutil.ChunkLocation(r.Record.Metadata)
		if chunked {
			label = ui.FormatSource(source, start, end)
		}

		detail := ui.Dim.Render(fmt.Sprintf("d=%s", fingerprint.FormatString(r.Distance, places)))
		if scored {
			detail = ui.FormatScore(r.Score)
		}

		// Header line
		fmt.Fprintf(out, "%s %s %s\n",
			ui.Highlight.Render(fmt.Sprintf("[%d]", i+1)),
			label,
			detail,
		)
		fmt.Fprintf(out, "    %s\n", ui.FormatPair(r.Record.Fingerprint, places))
		if scored {
			fmt.Fprintf(out, "    %s\n", ui.Dim.Render(fmt.Sprintf("numeric %.3f  text %.3f  edit %.3f",
				r.NumericScore, r.TextScore, r.EditScore)))
		}

		if r.ContextBefore != "" {
			fmt.Fprint(out, ui.Dim.Render(indent(r.ContextBefore)))
			fmt.Fprintln(out)
		}
		if chunked && content {
			fmt.Fprint(out, ui.HighlightCode(r.Record.Text, source, start))
		} else {
			fmt.Fprintf(out, "    %s\n", ui.ResultContent.Render(oneLine(r.Record.Text, 100)))
		}
		if r.ContextAfter != "" {
			fmt.Fprint(out, ui.Dim.Render(indent(r.ContextAfter)))
			fmt.Fprintln(out)
		}

		fmt.Fprintln(out)
	}
}

// indent prefixes every line of text.
func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
