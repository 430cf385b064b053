package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nickcecere/fpstore/internal/install"
	"github.com/nickcecere/fpstore/internal/ui"
)

var (
	installConfigPath string
	installWatch      string
)

// installCmd registers the MCP server with a coding agent.
var installCmd = &cobra.Command{
	Use:   "install <agent>",
	Short: "Install fpstore into an AI coding agent",
	Long: `Register fpstore as an MCP server with an AI coding agent.

Supported agents:
  - claude-code: Claude Code (~/.claude.json)
  - opencode: OpenCode (~/.config/opencode/opencode.json)

Other settings in the agent config are left untouched.

Examples:
  fpstore install claude-code
  fpstore install opencode --watch ~/notes`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: agentNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		agent, err := install.Lookup(args[0])
		if err != nil {
			return fmt.Errorf("%w (supported: %s)", err, strings.Join(agentNames(), ", "))
		}

		watch := installWatch
		if watch != "" {
			if watch, err = resolveDir([]string{watch}); err != nil {
				return err
			}
		}

		path, err := install.Install(agent, installConfigPath, install.Command(watch))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success.Render("Installed fpstore into "+agent.Display))
		fmt.Fprintf(out, "Config updated: %s\n", ui.FilePath.Render(path))
		if watch != "" {
			fmt.Fprintln(out, ui.Dim.Render("The server keeps "+watch+" ingested while the agent runs."))
		}
		return nil
	},
}

// uninstallCmd removes the MCP server from a coding agent.
var uninstallCmd = &cobra.Command{
	Use:       "uninstall <agent>",
	Short:     "Uninstall fpstore from an AI coding agent",
	Args:      cobra.ExactArgs(1),
	ValidArgs: agentNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		agent, err := install.Lookup(args[0])
		if err != nil {
			return err
		}

		removed, err := install.Uninstall(agent, installConfigPath)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(out, "fpstore is not installed in %s\n", agent.Display)
			return nil
		}
		fmt.Fprintln(out, ui.Success.Render("Uninstalled fpstore from "+agent.Display))
		return nil
	},
}

func agentNames() []string {
	var names []string
	for _, a := range install.Agents() {
		names = append(names, a.Name)
	}
	return names
}

func init() {
	installCmd.Flags().StringVar(&installConfigPath, "agent-config", "", "agent config file (default: the agent's usual location)")
	installCmd.Flags().StringVar(&installWatch, "watch", "", "directory the server keeps ingested")
	uninstallCmd.Flags().StringVar(&installConfigPath, "agent-config", "", "agent config file (default: the agent's usual location)")
}
