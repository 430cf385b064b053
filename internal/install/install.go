// Package install registers the fpstore MCP server with AI coding agents.
package install

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/fpstore/internal/fs"
)

// ServerName is the key fpstore is registered under.
const ServerName = "fpstore"

// ErrUnknownAgent is returned for agent names that are not supported.
var ErrUnknownAgent = errors.New("unknown agent")

// Agent describes how one coding agent configures MCP servers. Servers live
// in a map under the Section key of the config file at DefaultPath; Entry
// builds fpstore's entry for a command line and Defaults are top-level keys
// written when absent.
type Agent struct {
	Name        string
	Display     string
	Section     string
	DefaultPath func() string
	Entry       func(command []string) map[string]any
	Defaults    map[string]any
}

var agents = []Agent{
	{
		Name:    "claude-code",
		Display: "Claude Code",
		Section: "mcpServers",
		DefaultPath: func() string {
			home, _ := os.UserHomeDir()
			return filepath.Join(home, ".claude.json")
		},
		Entry: func(command []string) map[string]any {
			return map[string]any{
				"command": command[0],
				"args":    command[1:],
			}
		},
	},
	{
		Name:    "opencode",
		Display: "OpenCode",
		Section: "mcp",
		DefaultPath: func() string {
			home, _ := os.UserHomeDir()
			dir := filepath.Join(home, ".config", "opencode")
			jsoncPath := filepath.Join(dir, "opencode.jsonc")
			if _, err := os.Stat(jsoncPath); err == nil {
				return jsoncPath
			}
			return filepath.Join(dir, "opencode.json")
		},
		Entry: func(command []string) map[string]any {
			return map[string]any{
				"type":    "local",
				"command": command,
				"enabled": true,
			}
		},
		Defaults: map[string]any{"$schema": "https://opencode.ai/config.json"},
	},
}

// Agents returns the supported agents.
func Agents() []Agent {
	return slices.Clone(agents)
}

// Lookup finds an agent by name.
func Lookup(name string) (Agent, error) {
	for _, a := range agents {
		if a.Name == name {
			return a, nil
		}
	}
	return Agent{}, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
}

// Command returns the command line an agent should launch.
func Command(watchDir string) []string {
	command := []string{ServerName, "mcp"}
	if watchDir != "" {
		command = append(command, "--watch", watchDir)
	}
	return command
}

// Install adds the fpstore server to the agent config at path,
// preserving every other setting. An empty path uses the agent default.
func Install(agent Agent, path string, command []string) (string, error) {
	if path == "" {
		path = agent.DefaultPath()
	}

	config, err := readConfig(path)
	if err != nil {
		return path, err
	}
	for k, v := range agent.Defaults {
		if _, ok := config[k]; !ok {
			config[k] = v
		}
	}

	servers, ok := config[agent.Section].(map[string]any)
	if !ok {
		servers = make(map[string]any)
	}
	servers[ServerName] = agent.Entry(command)
	config[agent.Section] = servers

	if err := writeConfig(path, config); err != nil {
		return path, err
	}
	log.Debug("Registered MCP server", "agent", agent.Name, "config", path)
	return path, nil
}

// Uninstall removes the fpstore server from the agent config at path.
// It reports whether an entry was removed.
func Uninstall(agent Agent, path string) (bool, error) {
	if path == "" {
		path = agent.DefaultPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	config, err := readConfig(path)
	if err != nil {
		return false, err
	}

	servers, ok := config[agent.Section].(map[string]any)
	if !ok {
		return false, nil
	}
	if _, ok := servers[ServerName]; !ok {
		return false, nil
	}
	delete(servers, ServerName)
	config[agent.Section] = servers

	if err := writeConfig(path, config); err != nil {
		return false, err
	}
	return true, nil
}

func readConfig(path string) (map[string]any, error) {
	config := make(map[string]any)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if len(data) == 0 {
		return config, nil
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse existing config: %w", err)
	}
	return config, nil
}

func writeConfig(path string, config map[string]any) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := fs.WriteFileAtomic(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
