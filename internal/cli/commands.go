// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - non-interactive command handlers: models, export, import,
// version.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"

	"github.com/jeranaias/ollachat/internal/export"
	"github.com/jeranaias/ollachat/internal/util"
)

// =============================================================================
// MODELS
// =============================================================================

// HandleModels lists the models available on the server.
func HandleModels(app *App) int {
	models, err := app.Client.ListModels(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot list models: %v\n", err)
		return 1
	}
	if len(models) == 0 {
		fmt.Println("No models installed. Pull one with: ollama pull <name>")
		return 0
	}

	out := termenv.NewOutput(os.Stdout)
	selected := app.Settings.SelectedModel
	for _, m := range models {
		line := m.Name
		if m.Size > 0 {
			line = fmt.Sprintf("%s (%s)", m.Name, humanize.IBytes(uint64(m.Size)))
		}
		if m.Name == selected {
			fmt.Println(out.String("* " + line).Bold())
		} else {
			fmt.Println("  " + line)
		}
	}
	return 0
}

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

// HandleExport writes one conversation, or the whole store, to a JSON file.
func HandleExport(app *App, args Args) int {
	if args.Target == "" {
		fmt.Fprintln(os.Stderr, "Usage: ollachat export <conversation-id|all> [-o dir]")
		return 1
	}
	outDir := args.OutDir
	if outDir == "" {
		outDir = "."
	}

	var data []byte
	var filename string
	var err error
	if args.Target == "all" {
		data, err = export.Store(app.Store.List(), *app.Settings)
		filename = export.StoreFilename()
	} else {
		conv := app.Store.Get(args.Target)
		if conv == nil {
			fmt.Fprintf(os.Stderr, "Error: no conversation with id %q\n", args.Target)
			return 1
		}
		switch args.Format {
		case "", "json":
			data, err = export.Conversation(conv)
			filename = export.ConversationFilename(conv)
		case "markdown", "md":
			data, err = export.Markdown(conv)
			filename = export.MarkdownFilename(conv)
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown export format %q\n", args.Format)
			return 1
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: export failed: %v\n", err)
		return 1
	}

	path := filepath.Join(outDir, filename)
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot write %s: %v\n", path, err)
		return 1
	}
	fmt.Printf("Exported to %s\n", path)
	return 0
}

// HandleImport reads a previously exported file into the store. Both the
// single-conversation and full-store document shapes are accepted; the file
// content decides which.
func HandleImport(app *App, args Args) int {
	if args.File == "" {
		fmt.Fprintln(os.Stderr, "Usage: ollachat import <file>")
		return 1
	}
	data, err := os.ReadFile(args.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot read %s: %v\n", args.File, err)
		return 1
	}

	// Try the store bundle shape first; fall back to a single conversation.
	if bundle, err := export.ImportStore(data); err == nil {
		for _, conv := range bundle.Chats {
			app.Store.Add(conv)
		}
		if bundle.SettingsRaw != nil {
			if err := app.Settings.MergeJSON(bundle.SettingsRaw); err == nil {
				app.Snapshots.SaveSettings(*app.Settings)
			}
		}
		saveStore(app)
		fmt.Printf("Imported %d conversation(s)\n", len(bundle.Chats))
		return 0
	}

	conv, err := export.ImportConversation(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	app.Store.Add(conv)
	saveStore(app)
	fmt.Printf("Imported conversation %q\n", conv.Name)
	return 0
}

func saveStore(app *App) {
	if _, _, err := app.Snapshots.Save(app.Store.List()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save conversations: %v\n", err)
	}
}

// =============================================================================
// VERSION
// =============================================================================

// HandleVersion prints build information.
func HandleVersion() int {
	fmt.Printf("ollachat %s\n", Version)
	fmt.Printf("  commit: %s\n", GitCommit)
	fmt.Printf("  built:  %s\n", BuildDate)
	fmt.Printf("  %s/%s, %s\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
	return 0
}
