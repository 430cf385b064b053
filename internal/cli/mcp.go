package cli

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/fpstore/internal/mcp"
)

var (
	mcpWatch string
)

// mcpCmd represents the MCP server command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agent integration",
	Long: `Start a Model Context Protocol (MCP) server for integration with AI agents.

The server communicates via stdin/stdout using JSON-RPC 2.0 and provides tools for:
  - fpstore_encode: Fingerprint a text
  - fpstore_save: Store a text
  - fpstore_lookup: Find records by text or fingerprint value
  - fpstore_similar: Rank stored texts against a query
  - fpstore_recent: List recent saves
  - fpstore_ingest: Ingest a directory

With --watch, a background file watcher keeps the given directory ingested.

This command is typically invoked by an agent and not run directly by users.`,
	Args: cobra.NoArgs,
	RunE: runMcpCmd,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpWatch, "watch", "", "directory to keep ingested in the background")
}

func runMcpCmd(cmd *cobra.Command, args []string) error {
	// MCP server uses stdin/stdout for communication, so keep logs on stderr
	log.SetOutput(os.Stderr)

	ctx, cancel := signalContext(func() {
		log.Info("Received signal, shutting down")
	})
	defer cancel()

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	// Start background file watcher if requested
	if mcpWatch != "" {
		root, err := resolveDir([]string{mcpWatch})
		if err != nil {
			return err
		}
		go startBackgroundWatcher(ctx, ws, root)
	}

	// Create and run MCP server
	server := mcp.NewServer(ws, mcp.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()))
	return server.Run(ctx)
}
