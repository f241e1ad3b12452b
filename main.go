// ollachat - a terminal chat client for a local Ollama server.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	chatctl "github.com/jeranaias/ollachat/internal/chat"
	"github.com/jeranaias/ollachat/internal/cli"
	"github.com/jeranaias/ollachat/internal/config"
	"github.com/jeranaias/ollachat/internal/model"
	"github.com/jeranaias/ollachat/internal/ollama"
	"github.com/jeranaias/ollachat/internal/storage"
	uichat "github.com/jeranaias/ollachat/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Program reference for delivering stream updates from the send goroutine.
var (
	programRef *tea.Program
	programMu  sync.Mutex
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	if cmd == cli.CmdVersion {
		os.Exit(cli.HandleVersion())
	}
	if cmd == cli.CmdHelp {
		cli.Usage()
		os.Exit(0)
	}

	app, err := wireApp(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case cli.CmdTUI:
		os.Exit(runTUI(app))
	case cli.CmdChat:
		os.Exit(cli.HandleChat(app))
	case cli.CmdModels:
		os.Exit(cli.HandleModels(app))
	case cli.CmdExport:
		os.Exit(cli.HandleExport(app, args))
	case cli.CmdImport:
		os.Exit(cli.HandleImport(app, args))
	}
}

// wireApp loads the config, opens the persistence layer, and restores the
// conversation store and settings.
func wireApp(args cli.Args) (*cli.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	dataDir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}
	backend, err := storage.NewFileBackend(dataDir)
	if err != nil {
		return nil, fmt.Errorf("cannot open data directory: %w", err)
	}
	snaps := storage.NewSnapshots(backend, cfg.StorageLimits())

	convs, recovered := snaps.Load()
	if recovered {
		fmt.Fprintln(os.Stderr, "Warning: conversation data was corrupted; restored from backup")
	}
	store := model.NewStore()
	store.ReplaceAll(convs)
	if activeID := snaps.LoadActiveID(); activeID != "" {
		store.SetActive(activeID)
	}

	settings, ok := snaps.LoadSettings()
	if !ok {
		settings = model.DefaultSettings()
	}
	if args.Model != "" {
		settings.SelectedModel = args.Model
	}
	if settings.SelectedModel == "" {
		settings.SelectedModel = cfg.Server.DefaultModel
	}

	return &cli.App{
		Config:    cfg,
		Client:    ollama.NewClientWithConfig(cfg.ClientConfig()),
		Store:     store,
		Snapshots: snaps,
		Settings:  &settings,
	}, nil
}

// runTUI starts the Bubble Tea interface.
func runTUI(app *cli.App) int {
	ctrl := chatctl.New(chatctl.Config{
		Store:        app.Store,
		Client:       app.Client,
		Snapshots:    app.Snapshots,
		StallTimeout: app.Config.StallTimeout(),
		Notify: func(u chatctl.Update) {
			programMu.Lock()
			p := programRef
			programMu.Unlock()
			if p != nil {
				p.Send(uichat.StreamMsg{Update: u})
			}
		},
	})

	m := uichat.New(uichat.Config{
		Store:      app.Store,
		Controller: ctrl,
		Client:     app.Client,
		Snapshots:  app.Snapshots,
		Settings:   app.Settings,
		Theme:      app.Config.UI.Theme,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	programMu.Lock()
	programRef = p
	programMu.Unlock()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Final write-through so nothing typed in the last turn is lost.
	ctrl.SaveNow()
	app.Snapshots.SaveSettings(*app.Settings)
	return 0
}
