// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - plain REPL chat mode with input history, for terminals where the
// full TUI is unwanted (ssh sessions, scripts around a pty, screen readers).
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/jeranaias/ollachat/internal/chat"
	"github.com/jeranaias/ollachat/internal/config"
	"github.com/jeranaias/ollachat/internal/ui/styles"
)

var (
	promptStyle  = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	welcomeStyle = lipgloss.NewStyle().Foreground(styles.Purple).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(styles.TextSecondary)
	errorStyle   = lipgloss.NewStyle().Foreground(styles.Rose)
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// replInput provides input history and line editing for the REPL.
// USABILITY: supports arrow keys for history navigation.
type replInput struct {
	line        *liner.State
	historyFile string
}

func newREPLInput() *replInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	in := &replInput{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	if f, err := os.Open(in.historyFile); err == nil {
		in.line.ReadHistory(f)
		f.Close()
	}
	return in
}

func (r *replInput) read(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

func (r *replInput) close() {
	if err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	r.line.Close()
}

// =============================================================================
// REPL LOOP
// =============================================================================

// HandleChat runs the interactive REPL chat session.
func HandleChat(app *App) int {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "chat mode needs an interactive terminal; use the TUI or pipe through a pty")
		return 1
	}
	if app.Settings.SelectedModel == "" {
		if models, err := app.Client.ListModels(context.Background()); err == nil && len(models) > 0 {
			app.Settings.SelectedModel = models[0].Name
		}
	}

	// Deltas stream straight to stdout; Content carries the whole buffer,
	// so only the unprinted tail is written.
	printed := 0
	ctrl := chat.New(chat.Config{
		Store:        app.Store,
		Client:       app.Client,
		Snapshots:    app.Snapshots,
		StallTimeout: app.Config.StallTimeout(),
		Notify: func(u chat.Update) {
			switch u.Kind {
			case chat.UpdateStarted:
				printed = 0
			case chat.UpdateDelta:
				if len(u.Content) > printed {
					fmt.Print(u.Content[printed:])
					printed = len(u.Content)
				}
			}
		},
	})

	// Ctrl+C during generation aborts the stream, not the process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			ctrl.Cancel()
		}
	}()

	input := newREPLInput()
	defer input.close()

	fmt.Println(welcomeStyle.Render("ollachat"))
	fmt.Println(infoStyle.Render(fmt.Sprintf("model: %s | /new /list /model <name> /quit", app.Settings.SelectedModel)))
	fmt.Println()

	for {
		text, err := input.read(promptStyle.Render("> "))
		if err != nil {
			// Ctrl+C at the prompt or EOF ends the session.
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println()
			}
			break
		}
		if handled, quit := handleREPLCommand(app, text); quit {
			break
		} else if handled {
			continue
		}

		err = ctrl.Send(context.Background(), text, *app.Settings)
		fmt.Println()
		switch {
		case err == nil, errors.Is(err, chat.ErrEmptyInput):
		case errors.Is(err, chat.ErrNoModel):
			fmt.Println(errorStyle.Render("No model selected. Use /model <name>."))
		default:
			// The conversation already carries the detailed error message.
			if conv := app.Store.Active(); conv != nil {
				if last := conv.LastMessage(); last != nil {
					fmt.Println(errorStyle.Render(last.Content))
				}
			}
		}
		fmt.Println()
	}
	return 0
}

// handleREPLCommand processes slash commands. Returns (handled, quit).
func handleREPLCommand(app *App, text string) (bool, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return false, false
	}
	fields := strings.Fields(text)
	switch fields[0] {
	case "/quit", "/exit", "/q":
		return true, true

	case "/new":
		app.Store.ClearActive()
		fmt.Println(infoStyle.Render("Started a new conversation."))

	case "/list":
		for _, conv := range app.Store.List() {
			marker := "  "
			if conv.ID == app.Store.ActiveID() {
				marker = "* "
			}
			fmt.Printf("%s%s (%d messages)\n", marker, conv.Name, conv.MessageCount())
		}

	case "/model":
		if len(fields) < 2 {
			fmt.Println(infoStyle.Render("Usage: /model <name>"))
			break
		}
		app.Settings.SelectedModel = fields[1]
		app.Snapshots.SaveSettings(*app.Settings)
		fmt.Println(infoStyle.Render("Model set to " + fields[1]))

	default:
		fmt.Println(infoStyle.Render("Unknown command: " + fields[0]))
	}
	return true, false
}
