// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for ollachat.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/ollachat/internal/config"
	"github.com/jeranaias/ollachat/internal/model"
	"github.com/jeranaias/ollachat/internal/ollama"
	"github.com/jeranaias/ollachat/internal/storage"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdModels
	CmdExport
	CmdImport
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Model overrides the persisted model selection.
	Model string
	// OutDir is the export destination directory (default: current dir).
	OutDir string
	// Format selects the export format: "json" (default) or "markdown".
	Format string
	// Target is the export target: a conversation id or "all".
	Target string
	// File is the import source file.
	File string
	// Raw holds the remaining positional arguments.
	Raw []string
}

// App bundles the wired collaborators the command handlers need.
type App struct {
	Config    *config.Config
	Client    *ollama.Client
	Store     *model.Store
	Snapshots *storage.Snapshots
	Settings  *model.Settings
}

const usageText = `ollachat - terminal chat client for a local Ollama server

Usage:
  ollachat                        Start the TUI (default)
  ollachat chat                   Interactive chat in plain REPL mode
  ollachat models                 List models available on the server
  ollachat export <id|all> [-o dir]  Export one conversation or the whole store
  ollachat import <file>          Import a conversation or store export
  ollachat version                Show version information
  ollachat help                   Show this help

Flags:
  -m, --model <name>    Use this model instead of the saved selection
  -o, --out <dir>       Export destination directory
  -f, --format <fmt>    Export format: json (default) or markdown

Configuration is read from ~/.ollachat/config.toml; OLLACHAT_URL and
OLLACHAT_MODEL override it.
`

// Usage prints the help text.
func Usage() {
	fmt.Print(usageText)
}

// Parse reads os.Args and returns the command to run with its arguments.
func Parse() (Command, Args) {
	var parsed Args
	remaining := parseFlags(os.Args[1:], &parsed)

	if len(remaining) == 0 {
		return CmdTUI, parsed
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsed.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, parsed

	case "chat":
		return CmdChat, parsed

	case "models", "tags":
		return CmdModels, parsed

	case "export":
		if len(remaining) > 0 {
			parsed.Target = remaining[0]
		}
		return CmdExport, parsed

	case "import":
		if len(remaining) > 0 {
			parsed.File = remaining[0]
		}
		return CmdImport, parsed

	case "version", "-v", "--version":
		return CmdVersion, parsed

	case "help", "-h", "--help":
		return CmdHelp, parsed

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		return CmdHelp, parsed
	}
}

// parseFlags strips recognized flags from anywhere in the argument list and
// returns the rest in order.
func parseFlags(args []string, parsed *Args) []string {
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-m", "--model":
			if i+1 < len(args) {
				i++
				parsed.Model = args[i]
			}
		case "-o", "--out":
			if i+1 < len(args) {
				i++
				parsed.OutDir = args[i]
			}
		case "-f", "--format":
			if i+1 < len(args) {
				i++
				parsed.Format = strings.ToLower(args[i])
			}
		default:
			rest = append(rest, arg)
		}
	}
	return rest
}
