package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nickcecere/fpstore/internal/hybrid"
	"github.com/nickcecere/fpstore/internal/timeline"
	"github.com/nickcecere/fpstore/internal/ui"
)

var (
	recentLimit   int
	auditLimit    int
	timelineLimit int
	timelineQuery string
	timelineStats bool
)

// recentCmd lists the recent index.
var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recently saved texts",
	Long: `List the bounded index of recent saves, newest first. Only the most recent
entries are kept; older ones are evicted but their records stay on disk.

Examples:
  fpstore recent -n 5
  fpstore recent verify
  fpstore recent remove <entry-id>`,
	Args: cobra.NoArgs,
	RunE: runRecent,
}

var recentRemoveCmd = &cobra.Command{
	Use:   "remove <entry-id>",
	Short: "Remove one entry from the recent index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := ws.Recent.Remove(args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Render("Removed "+args[0]))
		return nil
	},
}

var recentClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every entry and the audit history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := ws.Recent.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success.Render("Recent index cleared"))
		return nil
	},
}

var recentVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every entry against the records it points to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer ws.Close()

		problems := ws.Hybrid.Verify()
		if jsonOutput {
			return writeJSON(out, problems)
		}
		if len(problems) == 0 {
			fmt.Fprintln(out, ui.Success.Render("All entries resolve to matching records"))
			return nil
		}
		for _, p := range problems {
			fmt.Fprintf(out, "%s %s %s\n",
				ui.Warning.Render(p.Reason),
				p.Entry.ID,
				ui.FilePath.Render(p.Path),
			)
		}
		return fmt.Errorf("%d inconsistent entries", len(problems))
	},
}

// auditCmd shows the recent index audit log.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the recent index audit log",
	Args:  cobra.NoArgs,
	RunE:  runAudit,
}

// timelineCmd shows recorded queries.
var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show recorded queries",
	Long: `Show the query timeline, newest first.

Examples:
  # Last 20 queries
  fpstore timeline -n 20

  # Every run of one query
  fpstore timeline --query "hello world"

  # Summary counts
  fpstore timeline --stats`,
	Args: cobra.NoArgs,
	RunE: runTimeline,
}

func init() {
	recentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 10, "maximum number of entries (0 for all)")
	recentCmd.AddCommand(recentRemoveCmd)
	recentCmd.AddCommand(recentClearCmd)
	recentCmd.AddCommand(recentVerifyCmd)

	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "maximum number of entries (0 for all)")

	timelineCmd.Flags().IntVarP(&timelineLimit, "limit", "n", 20, "maximum number of entries (0 for all)")
	timelineCmd.Flags().StringVarP(&timelineQuery, "query", "q", "", "only show runs of this query text")
	timelineCmd.Flags().BoolVar(&timelineStats, "stats", false, "show summary counts")
}

func runRecent(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	results := ws.Hybrid.List(recentLimit)
	if jsonOutput {
		return writeJSON(out, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No recent entries.")
		return nil
	}
	printRecent(out, results, ws.Encoder.DecimalPlaces())
	return nil
}

func printRecent(out io.Writer, results []hybrid.Result, places int) {
	for i, r := range results {
		status := ui.Success.Render("ok")
		if r.Record == nil {
			status = ui.Warning.Render("unresolved")
		}
		fmt.Fprintf(out, "%s %s %s %s\n",
			ui.Highlight.Render(fmt.Sprintf("[%d]", i+1)),
			r.Entry.ID,
			ui.Dim.Render(formatTime(r.Entry.CreatedAt)),
			status,
		)
		fmt.Fprintf(out, "    %s\n", ui.FormatPair(r.Entry.Fingerprint, places))
		fmt.Fprintf(out, "    %s\n", ui.ResultContent.Render(oneLine(r.Entry.Text, 100)))
	}
}

func runAudit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	history := ws.Recent.History(auditLimit)
	if jsonOutput {
		return writeJSON(out, history)
	}
	if len(history) == 0 {
		fmt.Fprintln(out, "No audit entries.")
		return nil
	}
	for _, a := range history {
		related := ""
		if a.RelatedID != "" {
			related = " " + ui.Dim.Render(a.RelatedID)
		}
		fmt.Fprintf(out, "%s %-6s %s%s\n",
			ui.Dim.Render(a.Timestamp.Local().Format(time.DateTime)),
			a.Action,
			oneLine(a.Text, 60),
			related,
		)
	}
	return nil
}

func runTimeline(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	if timelineStats {
		stats := ws.Timeline.Stats()
		if jsonOutput {
			return writeJSON(out, stats)
		}
		fmt.Fprintln(out, ui.Header.Render("Query Timeline"))
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  %s %d (%d found, %d not found)\n", ui.Dim.Render("Queries:"), stats.Total, stats.Found, stats.NotFound)
		fmt.Fprintf(out, "  %s %.1f%%\n", ui.Dim.Render("Success:"), stats.SuccessRate*100)
		for _, t := range []timeline.QueryType{timeline.QueryExact, timeline.QueryRange, timeline.QuerySimilar} {
			fmt.Fprintf(out, "  %s %d\n", ui.Dim.Render(fmt.Sprintf("%-8s", string(t)+":")), stats.ByType[t])
		}
		if stats.First != nil {
			fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("First:  "), formatTime(*stats.First))
			fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("Last:   "), formatTime(*stats.Last))
		}
		return nil
	}

	entries := ws.Timeline.Timeline(timelineLimit)
	if timelineQuery != "" {
		entries = ws.Timeline.HistoryFor(timelineQuery, timelineLimit)
	}
	if jsonOutput {
		return writeJSON(out, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No recorded queries.")
		return nil
	}

	for _, e := range entries {
		outcome := ui.Success.Render(fmt.Sprintf("%d found", e.ResultCount))
		if !e.Found {
			outcome = ui.Warning.Render("not found")
		}
		fmt.Fprintf(out, "%s %-7s %s %s\n",
			ui.Dim.Render(e.Timestamp.Local().Format(time.DateTime)),
			e.QueryType,
			oneLine(e.QueryText, 60),
			outcome,
		)
		for _, s := range e.SimilarResults {
			fmt.Fprintf(out, "    %s %s\n", ui.FormatScore(s.Score), oneLine(s.Text, 60))
		}
	}
	return nil
}
