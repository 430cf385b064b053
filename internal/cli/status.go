package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/fpstore/internal/catalog"
	"github.com/nickcecere/fpstore/internal/recent"
	"github.com/nickcecere/fpstore/internal/shard"
	"github.com/nickcecere/fpstore/internal/timeline"
	"github.com/nickcecere/fpstore/internal/ui"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store status and statistics",
	Long: `Display information about the store including:
- Files and bytes in each shard tree
- Recent index fill and audit counts
- Query timeline totals
- Catalog contents`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// Status is the machine-readable form of the status command.
type Status struct {
	Shards   shard.Stats    `json:"shards"`
	Recent   recent.Stats   `json:"recent"`
	Timeline timeline.Stats `json:"timeline"`
	Catalog  *catalog.Stats `json:"catalog,omitempty"`
	Problems int            `json:"problems"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	status := Status{
		Shards:   ws.Shards.Stats(),
		Recent:   ws.Recent.Stats(),
		Timeline: ws.Timeline.Stats(),
		Problems: len(ws.Hybrid.Verify()),
	}
	if ws.Catalog != nil {
		status.Catalog, err = ws.Catalog.Stats()
		if err != nil {
			log.Warn("Failed to get catalog stats", "error", err)
		}
	}

	if jsonOutput {
		return writeJSON(out, status)
	}

	fmt.Fprintln(out, ui.Header.Render("Store Status"))
	fmt.Fprintln(out)

	fmt.Fprintf(out, "%s %s\n", ui.Highlight.Render("Shards:"), ui.FilePath.Render(status.Shards.Root))
	for _, t := range status.Shards.Trees {
		fmt.Fprintf(out, "  %s %d files, %s\n",
			ui.Dim.Render(fmt.Sprintf("%-6s", string(t.Side)+":")),
			t.Files,
			formatBytes(t.Bytes),
		)
	}
	fmt.Fprintln(out)

	r := status.Recent
	fmt.Fprintf(out, "%s %s\n", ui.Highlight.Render("Recent index:"), ui.FilePath.Render(r.Path))
	fmt.Fprintf(out, "  %s %d / %d\n", ui.Dim.Render("Entries:"), r.Items, r.MaxItems)
	fmt.Fprintf(out, "  %s %d (%d add, %d remove, %d query)\n",
		ui.Dim.Render("Audit:  "),
		r.HistoryEntries,
		r.Actions[recent.ActionAdd],
		r.Actions[recent.ActionRemove],
		r.Actions[recent.ActionQuery],
	)
	if r.Newest != nil {
		fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("Newest: "), formatTime(*r.Newest))
	}
	fmt.Fprintf(out, "  %s %s\n", ui.Dim.Render("Health: "), getHealthStatus(status))
	fmt.Fprintln(out)

	tl := status.Timeline
	fmt.Fprintf(out, "%s %d queries, %.1f%% found\n", ui.Highlight.Render("Timeline:"), tl.Total, tl.SuccessRate*100)
	fmt.Fprintln(out)

	if c := status.Catalog; c != nil {
		fmt.Fprintf(out, "%s %s\n", ui.Highlight.Render("Catalog:"), ui.FilePath.Render(c.Path))
		fmt.Fprintf(out, "  %s %d records, %d upper, %d lower, %d vectors\n",
			ui.Dim.Render("Indexed:"),
			c.Records,
			c.Entries["upper"],
			c.Entries["lower"],
			c.Vectors,
		)
		fmt.Fprintf(out, "  %s %d\n", ui.Dim.Render("Sources:"), c.Sources)
	} else {
		fmt.Fprintf(out, "%s %s\n", ui.Highlight.Render("Catalog:"), ui.Dim.Render("disabled"))
	}

	return nil
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	t = t.Local()

	// If today, show time only
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today at " + t.Format("15:04")
	}

	// If this year, omit year
	if t.Year() == now.Year() {
		return t.Format("Jan 2 at 15:04")
	}

	return t.Format("Jan 2, 2006 at 15:04")
}

// getHealthStatus returns a health indicator for the recent index.
func getHealthStatus(s Status) string {
	if s.Problems > 0 {
		return ui.Warning.Render(fmt.Sprintf("%d inconsistent entries (run 'fpstore recent verify')", s.Problems))
	}
	if s.Recent.Items == 0 {
		return ui.Dim.Render("empty")
	}
	return ui.Success.Render("healthy")
}
