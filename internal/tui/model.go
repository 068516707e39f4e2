// Package tui renders a catalog session as a Bubble Tea program.
//
// The model owns the session: key presses become session operations and
// the returned effects run as tea.Cmds, whose messages come back through
// Update and are handed to Session.Apply.
package tui

import (
	"github.com/Sternrassler/catalog-browser/internal/catalog"
	"github.com/Sternrassler/catalog-browser/pkg/logging"
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
)

// Focus is the region receiving key presses.
type Focus int

const (
	FocusList Focus = iota
	FocusBrands
	FocusJump
)

// Model is the Bubble Tea model of the browser.
type Model struct {
	session *catalog.Session
	keys    KeyMap
	logger  zerolog.Logger

	table   table.Model
	spinner spinner.Model
	input   textinput.Model
	help    help.Model

	focus       Focus
	brandCursor int
	width       int
	height      int
	quitting    bool
}

// New creates the model for session. Fetching starts with Init.
func New(session *catalog.Session) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styleTitle

	in := textinput.New()
	in.Placeholder = "page"
	in.CharLimit = 9
	in.Width = 10
	in.Prompt = "go to page: "
	in.Cursor.SetMode(cursor.CursorStatic)

	t := table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(true),
		table.WithHeight(20),
	)
	t.SetStyles(tableStyles())

	return &Model{
		session: session,
		keys:    DefaultKeyMap,
		logger:  logging.NewLogger("tui"),
		table:   t,
		spinner: sp,
		input:   in,
		help:    help.New(),
	}
}

// Focus returns the region receiving key presses.
func (m *Model) Focus() Focus {
	return m.focus
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run(m.session.Start()))
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetColumns(columns(msg.Width))
		m.table.SetHeight(max(msg.Height-8, 3))
		m.help.Width = msg.Width
		return m, nil

	case catalog.Msg:
		cmd := m.run(m.session.Apply(msg))
		m.refresh()
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.focus {
		case FocusBrands:
			return m.handleBrandKeys(msg)
		case FocusJump:
			return m.handleJumpKeys(msg)
		default:
			return m.handleListKeys(msg)
		}
	}

	return m, nil
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.logger.Info().Msg("Quit requested")
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Prev):
		return m, m.do(m.session.PrevPage())

	case key.Matches(msg, m.keys.Next):
		return m, m.do(m.session.NextPage())

	case key.Matches(msg, m.keys.Reload):
		return m, m.do(m.session.Reload())

	case key.Matches(msg, m.keys.Brands):
		m.focus = FocusBrands
		m.brandCursor = m.currentBrandIndex()
		return m, nil

	case key.Matches(msg, m.keys.Jump):
		if !m.session.View().CanJump {
			return m, nil
		}
		m.focus = FocusJump
		m.input.Reset()
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) handleBrandKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	options := m.brandOptions()

	switch {
	case msg.String() == "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Brands):
		m.focus = FocusList

	case key.Matches(msg, m.keys.Up):
		if m.brandCursor > 0 {
			m.brandCursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.brandCursor < len(options)-1 {
			m.brandCursor++
		}

	case key.Matches(msg, m.keys.Confirm):
		m.focus = FocusList
		brand := options[m.brandCursor]
		m.logger.Debug().Str("brand", brand).Msg("Brand chosen")
		return m, m.do(m.session.SelectBrand(brand))
	}

	return m, nil
}

func (m *Model) handleJumpKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		m.focus = FocusList
		m.input.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Confirm):
		m.focus = FocusList
		m.input.Blur()
		return m, m.do(m.session.JumpPage(m.input.Value()))
	}

	if m.session.View().Loading {
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// do runs session effects and refreshes the table.
func (m *Model) do(effects []catalog.Effect) tea.Cmd {
	cmd := m.run(effects)
	m.refresh()
	return cmd
}

// run turns session effects into commands.
func (m *Model) run(effects []catalog.Effect) tea.Cmd {
	if len(effects) == 0 {
		return nil
	}

	cmds := make([]tea.Cmd, 0, len(effects))
	for _, effect := range effects {
		cmds = append(cmds, func() tea.Msg { return effect() })
	}
	return tea.Batch(cmds...)
}

// refresh copies the session items into the table.
func (m *Model) refresh() {
	v := m.session.View()
	m.table.SetRows(rows(v.Items))
	if m.table.Cursor() >= len(v.Items) {
		m.table.SetCursor(0)
	}
}

func (m *Model) brandOptions() []string {
	return append([]string{""}, m.session.View().Brands...)
}

func (m *Model) currentBrandIndex() int {
	brand := m.session.View().Brand
	for i, b := range m.brandOptions() {
		if b == brand {
			return i
		}
	}
	return 0
}
