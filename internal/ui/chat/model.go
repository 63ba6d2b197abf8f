// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/jeranaias/yumchat/internal/config"
	"github.com/jeranaias/yumchat/internal/turn"
	"github.com/jeranaias/yumchat/internal/ui/styles"
)

// Defaults for Options.
const (
	DefaultTickInterval = 16 * time.Millisecond
	DefaultRenderRate   = 30
	inputCharLimit      = 8192
)

// Options configures a chat Model.
type Options struct {
	Session *turn.Session
	Theme   *styles.Theme

	// Health, if set, is checked once at startup.
	Health HealthChecker

	// ConfigUpdates delivers hot-reloaded configuration.
	ConfigUpdates <-chan ConfigReloadedMsg

	// TickInterval is how often the session is polled while streaming.
	TickInterval time.Duration

	// RenderRate caps transcript redraws per second while streaming.
	RenderRate float64

	Logger *log.Logger
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model of the chat view.
type Model struct {
	ctx     context.Context
	session *turn.Session
	theme   *styles.Theme
	logger  *log.Logger
	health  HealthChecker
	updates <-chan ConfigReloadedMsg

	keys     KeyMap
	help     help.Model
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	tickInterval time.Duration
	limiter      *rate.Limiter
	ticking      bool
	dirty        bool

	width    int
	height   int
	ready    bool
	showHelp bool

	ollamaErr error
	notice    string
}

// New creates a chat model. ctx bounds every turn started from the UI.
func New(ctx context.Context, opts Options) Model {
	if opts.Theme == nil {
		opts.Theme = styles.NewTheme(config.Default().Theme)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.RenderRate <= 0 {
		opts.RenderRate = DefaultRenderRate
	}

	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Prompt = "> "
	input.CharLimit = inputCharLimit
	input.Focus()

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(opts.Theme.Spinner),
	)

	return Model{
		ctx:          ctx,
		session:      opts.Session,
		theme:        opts.Theme,
		logger:       opts.Logger,
		health:       opts.Health,
		updates:      opts.ConfigUpdates,
		keys:         DefaultKeyMap(),
		help:         help.New(),
		input:        input,
		spinner:      sp,
		tickInterval: opts.TickInterval,
		limiter:      rate.NewLimiter(rate.Limit(opts.RenderRate), 1),
	}
}

// Init starts the cursor blink, the health check and the config listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		CheckOllamaCmd(m.health),
		waitForConfig(m.updates),
	)
}

// Update handles Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		return m.handleTick()

	case spinner.TickMsg:
		if !m.session.Busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case OllamaStatusMsg:
		m.ollamaErr = msg.Error
		if msg.Error != nil {
			m.logger.Warn("ollama health check failed", "err", msg.Error)
		}
		return m, nil

	case ConfigReloadedMsg:
		return m.handleConfig(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the chat interface.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return m.renderChat()
}

// =============================================================================
// MESSAGE HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.help.Width = msg.Width

	if !m.ready {
		m.viewport = viewport.New(0, 0)
		m.ready = true
	}
	m.layout()
	m.refresh()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.session.Cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.session.Cancel() {
			m.notice = "Generation cancelled"
			m.refresh()
		}
		return m, nil

	case key.Matches(msg, m.keys.ToggleThinking):
		if m.session.ToggleReasoning() {
			m.notice = "Thinking shown"
		} else {
			m.notice = "Thinking hidden"
		}
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Home):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.End):
		m.viewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit starts a turn with the input text. Enter is ignored while a turn
// streams.
func (m Model) submit() (tea.Model, tea.Cmd) {
	err := m.session.Submit(m.ctx, m.input.Value())
	switch {
	case errors.Is(err, turn.ErrTurnInProgress):
		m.notice = "Still generating, press Esc to cancel"
		return m, nil
	case errors.Is(err, turn.ErrEmptyPrompt):
		return m, nil
	case err != nil:
		m.notice = err.Error()
		m.logger.Error("submit failed", "err", err)
		return m, nil
	}

	m.notice = ""
	m.input.Reset()
	m.refresh()
	m.viewport.GotoBottom()

	cmds := []tea.Cmd{m.spinner.Tick}
	if !m.ticking {
		m.ticking = true
		cmds = append(cmds, tickCmd(m.tickInterval))
	}
	return m, tea.Batch(cmds...)
}

// handleTick polls the session and keeps ticking while the turn streams.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	if m.session.Poll() > 0 {
		m.dirty = true
	}

	if !m.session.Busy() {
		m.ticking = false
		m.refresh()
		return m, nil
	}

	if m.dirty && m.limiter.Allow() {
		m.refresh()
	}
	return m, tickCmd(m.tickInterval)
}

func (m Model) handleConfig(msg ConfigReloadedMsg) (tea.Model, tea.Cmd) {
	next := waitForConfig(m.updates)
	if msg.Err != nil {
		m.notice = "Config not reloaded: " + msg.Err.Error()
		m.logger.Warn("config reload failed", "err", msg.Err)
		return m, next
	}

	m.theme.Apply(msg.Config.Theme)
	m.spinner.Style = m.theme.Spinner
	if msg.Config.ShowThinking != m.session.ShowReasoning() {
		m.session.ToggleReasoning()
	}
	m.notice = "Config reloaded"
	m.logger.Info("config reloaded")
	m.refresh()
	return m, next
}

// =============================================================================
// LAYOUT
// =============================================================================

// layout sizes the viewport and input from the window size.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	frameW, frameH := m.theme.Viewport.GetFrameSize()

	// status bar + input border + input line + help
	chrome := 3 + m.helpHeight()

	m.viewport.Width = max(m.width-frameW, 1)
	m.viewport.Height = max(m.height-chrome-frameH, 1)
	m.input.Width = max(m.width-4, 1)
}

// refresh re-renders the transcript into the viewport. A view scrolled to
// the bottom stays there.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript(m.viewport.Width))
	if atBottom {
		m.viewport.GotoBottom()
	}
	m.dirty = false
}
