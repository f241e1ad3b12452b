// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	gstyles "github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"

	chatctl "github.com/jeranaias/ollachat/internal/chat"
	"github.com/jeranaias/ollachat/internal/model"
	"github.com/jeranaias/ollachat/internal/ollama"
	"github.com/jeranaias/ollachat/internal/storage"
	"github.com/jeranaias/ollachat/internal/ui/styles"
	"github.com/jeranaias/ollachat/internal/util"
)

const sidebarWidth = 28

// Config wires the TUI's collaborators.
type Config struct {
	Store      *model.Store
	Controller *chatctl.Controller
	Client     *ollama.Client
	Snapshots  *storage.Snapshots
	Settings   *model.Settings
	// Theme selects the markdown rendering style ("dark" or "light");
	// anything else falls back to terminal-background detection.
	Theme string
}

// Model is the Bubble Tea model for the chat interface. It is a thin
// presentation layer: all conversation and streaming state lives in the
// store and the controller.
type Model struct {
	store    *model.Store
	ctrl     *chatctl.Controller
	client   *ollama.Client
	snaps    *storage.Snapshots
	settings *model.Settings

	keys        KeyMap
	textarea    textarea.Model
	viewport    viewport.Model
	spinner     spinner.Model
	renameInput textinput.Model
	renderer    *glamour.TermRenderer

	theme string

	width, height int
	ready         bool
	loading       bool
	renaming      bool
	serverDown    bool
	notice        string
}

// New creates the chat TUI model.
func New(cfg Config) *Model {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.Focus()

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(styles.Purple)),
	)

	ri := textinput.New()
	ri.Placeholder = "New name"
	ri.CharLimit = model.MaxNameRunes

	return &Model{
		store:       cfg.Store,
		ctrl:        cfg.Controller,
		client:      cfg.Client,
		snaps:       cfg.Snapshots,
		settings:    cfg.Settings,
		keys:        DefaultKeyMap(),
		textarea:    ta,
		spinner:     sp,
		renameInput: ri,
		theme:       cfg.Theme,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.checkServerCmd(),
		m.loadModelsCmd(),
	)
}

// =============================================================================
// COMMANDS
// =============================================================================

func (m *Model) checkServerCmd() tea.Cmd {
	return func() tea.Msg {
		return serverStatusMsg{err: m.client.CheckRunning(context.Background())}
	}
}

func (m *Model) loadModelsCmd() tea.Cmd {
	return func() tea.Msg {
		models, err := m.client.ListModels(context.Background())
		return modelsMsg{models: models, err: err}
	}
}

// sendCmd runs the full turn on its own goroutine. Progress arrives back as
// StreamMsg values via Program.Send, not through the returned message.
func (m *Model) sendCmd(text string) tea.Cmd {
	settings := *m.settings
	return func() tea.Msg {
		m.ctrl.Send(context.Background(), text, settings)
		return nil
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		if m.renaming {
			return m.updateRenaming(msg)
		}
		return m.updateKeys(msg)

	case StreamMsg:
		return m.updateStream(msg.Update)

	case serverStatusMsg:
		m.serverDown = msg.err != nil
		return m, nil

	case modelsMsg:
		if msg.err == nil && m.settings.SelectedModel == "" && len(msg.models) > 0 {
			m.settings.SelectedModel = msg.models[0].Name
			m.snaps.SaveSettings(*m.settings)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keys := m.keys
	switch {
	case key.Matches(msg, keys.Quit):
		m.ctrl.Cancel()
		m.ctrl.SaveNow()
		return m, tea.Quit

	case key.Matches(msg, keys.Cancel):
		m.ctrl.Cancel()
		return m, nil

	case key.Matches(msg, keys.Submit):
		text := strings.TrimSpace(m.textarea.Value())
		if text == "" || m.loading {
			return m, nil
		}
		m.textarea.Reset()
		m.loading = true
		m.notice = ""
		return m, tea.Batch(m.sendCmd(text), m.spinner.Tick)

	case key.Matches(msg, keys.NewChat):
		if m.loading {
			return m, nil
		}
		m.store.ClearActive()
		m.refreshTranscript()
		return m, nil

	case key.Matches(msg, keys.DeleteChat):
		if active := m.store.Active(); active != nil && !m.loading {
			m.store.Delete(active.ID)
			m.ctrl.SaveNow()
			m.refreshTranscript()
		}
		return m, nil

	case key.Matches(msg, keys.RenameChat):
		if active := m.store.Active(); active != nil {
			m.renaming = true
			m.renameInput.SetValue(active.Name)
			m.renameInput.Focus()
			m.textarea.Blur()
		}
		return m, nil

	case key.Matches(msg, keys.ToggleSidebar):
		m.settings.ShowSidebar = !m.settings.ShowSidebar
		m.snaps.SaveSettings(*m.settings)
		m.resize(m.width, m.height)
		m.refreshTranscript()
		return m, nil

	case key.Matches(msg, keys.NextChat):
		m.selectAdjacent(1)
		return m, nil

	case key.Matches(msg, keys.PrevChat):
		m.selectAdjacent(-1)
		return m, nil

	case key.Matches(msg, keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m *Model) updateRenaming(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if active := m.store.Active(); active != nil {
			if name := strings.TrimSpace(m.renameInput.Value()); name != "" {
				m.store.Rename(active.ID, name)
				m.ctrl.SaveNow()
			}
		}
		m.stopRenaming()
		return m, nil
	case "esc":
		m.stopRenaming()
		return m, nil
	}
	var cmd tea.Cmd
	m.renameInput, cmd = m.renameInput.Update(msg)
	return m, cmd
}

func (m *Model) stopRenaming() {
	m.renaming = false
	m.renameInput.Blur()
	m.textarea.Focus()
}

func (m *Model) updateStream(u chatctl.Update) (tea.Model, tea.Cmd) {
	switch u.Kind {
	case chatctl.UpdateStarted, chatctl.UpdateDelta:
		m.refreshTranscript()
	case chatctl.UpdateDone:
		m.loading = false
		m.refreshTranscript()
	case chatctl.UpdateCancelled:
		m.loading = false
		m.notice = "Generation stopped."
		m.refreshTranscript()
	case chatctl.UpdateFailed:
		m.loading = false
		if ollama.IsNotRunning(u.Err) {
			m.serverDown = true
		}
		m.refreshTranscript()
	}
	return m, nil
}

// selectAdjacent moves the active selection within the sidebar order.
func (m *Model) selectAdjacent(delta int) {
	list := m.store.List()
	if len(list) == 0 {
		return
	}
	activeID := m.store.ActiveID()
	idx := -1
	for i, c := range list {
		if c.ID == activeID {
			idx = i
			break
		}
	}
	idx += delta
	if idx < 0 {
		idx = 0
	}
	if idx >= len(list) {
		idx = len(list) - 1
	}
	m.store.SetActive(list[idx].ID)
	m.refreshTranscript()
}

// =============================================================================
// LAYOUT AND RENDERING
// =============================================================================

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	mainWidth := width
	if m.settings.ShowSidebar {
		mainWidth -= sidebarWidth
	}
	inputHeight := 5  // textarea plus frame
	chromeHeight := 3 // banner/status lines
	vpHeight := height - inputHeight - chromeHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(mainWidth, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = mainWidth
		m.viewport.Height = vpHeight
	}
	m.textarea.SetWidth(mainWidth - 2)

	// Rebuild the renderer at the new wrap width.
	wrap := mainWidth - 4
	if wrap < 20 {
		wrap = 20
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(styleNameForTheme(m.theme)),
		glamour.WithWordWrap(wrap),
	)
	if err == nil {
		m.renderer = renderer
	}
}

// styleNameForTheme maps the configured UI theme to a glamour style name.
// Unrecognized values fall back to terminal-background autodetection.
func styleNameForTheme(theme string) string {
	switch theme {
	case "dark":
		return gstyles.DarkStyle
	case "light":
		return gstyles.LightStyle
	}
	return gstyles.AutoStyle
}

// refreshTranscript re-renders the active conversation into the viewport and
// pins it to the bottom.
func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	conv := m.store.Active()
	if conv == nil {
		m.viewport.SetContent(styles.MutedText.Render("No conversation. Type a message to start one."))
		return
	}

	var b strings.Builder
	for _, msg := range conv.Messages {
		switch msg.Role {
		case model.RoleUser:
			b.WriteString(styles.UserLabel.Render("You"))
			b.WriteString("\n")
			b.WriteString(msg.Content)
		case model.RoleAssistant:
			b.WriteString(styles.AssistantLabel.Render(m.settings.SelectedModel))
			b.WriteString("\n")
			b.WriteString(m.renderMarkdown(msg.Content))
		case model.RoleError:
			b.WriteString(styles.ErrorText.Render(msg.Content))
		}
		b.WriteString("\n\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var main strings.Builder
	if m.serverDown {
		main.WriteString(styles.Banner.Render(
			fmt.Sprintf("Cannot reach Ollama at %s - is `ollama serve` running?", m.client.BaseURL())))
		main.WriteString("\n")
	}
	main.WriteString(m.viewport.View())
	main.WriteString("\n")

	if m.loading {
		main.WriteString(m.spinner.View() + " Generating... (Esc to cancel)\n")
	} else if m.notice != "" {
		main.WriteString(styles.WarningText.Render(m.notice) + "\n")
	}

	if m.renaming {
		main.WriteString(styles.InputFrameFocused.Render("Rename: " + m.renameInput.View()))
	} else {
		frame := styles.InputFrame
		if !m.loading {
			frame = styles.InputFrameFocused
		}
		main.WriteString(frame.Render(m.textarea.View()))
	}
	main.WriteString("\n")
	main.WriteString(m.statusLine())

	if !m.settings.ShowSidebar {
		return main.String()
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), main.String())
}

func (m *Model) statusLine() string {
	modelName := m.settings.SelectedModel
	if modelName == "" {
		modelName = "no model"
	}
	return styles.StatusBar.Render(fmt.Sprintf(
		"%s | C-n new  C-r rename  C-x delete  C-b sidebar  C-c quit", modelName))
}

func (m *Model) sidebarView() string {
	var b strings.Builder
	b.WriteString(styles.SidebarActive.Render("Conversations"))
	b.WriteString("\n\n")

	activeID := m.store.ActiveID()
	for _, conv := range m.store.List() {
		name := util.TruncateWidth(conv.Name, sidebarWidth-4)
		if conv.ID == activeID {
			b.WriteString(styles.SidebarActive.Render("> " + name))
		} else {
			b.WriteString(styles.SidebarEntry.Render("  " + name))
		}
		b.WriteString("\n")
	}
	return styles.Sidebar.Width(sidebarWidth - 2).Height(m.viewport.Height).Render(b.String())
}

