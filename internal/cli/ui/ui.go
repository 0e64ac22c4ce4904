// internal/cli/ui/ui.go
// Terminal status UI for the companion. It renders the link state and
// the live key set from the forwarded events channel and forwards the
// update/disconnect requests to the supervisor. Profile editing happens
// elsewhere; this surface is read-mostly on purpose.
package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"jukebox/internal/host"
	"jukebox/pkg/peripheral"
)

// Styles
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#F59E0B")).
			Padding(0, 2).
			Bold(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF")).
			Padding(0, 2)

	connectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#22C55E")).
			Bold(true)

	lostStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	idleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF"))

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#60A5FA")).
			Padding(0, 1).
			MarginRight(1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5E7EB"))
)

type keymap struct {
	Update     key.Binding
	Disconnect key.Binding
	Quit       key.Binding
}

var keys = keymap{
	Update:     key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "update device")),
	Disconnect: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "disconnect")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type linkState int

const (
	stateSearching linkState = iota
	stateConnected
	stateDisconnected
	stateLost
)

type eventMsg struct{ ev host.Event }

type eventsClosedMsg struct{}

// Model is the bubbletea model for the status screen.
type Model struct {
	events <-chan host.Event
	send   func(host.Command) bool

	state linkState
	link  host.LinkInfo
	held  peripheral.KeySet

	spin spinner.Model
}

// New builds the model around the supervisor's forwarded events channel
// and command entry point.
func New(events <-chan host.Event, send func(host.Command) bool) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		events: events,
		send:   send,
		state:  stateSearching,
		held:   peripheral.KeySet{},
		spin:   sp,
	}
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{ev}
	}
}

// Init starts the event pump and the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), m.spin.Tick)
}

// Update handles events and key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		switch msg.ev.Kind {
		case host.EventConnected:
			m.state = stateConnected
			m.link = msg.ev.Link
			m.held = peripheral.KeySet{}
		case host.EventDisconnected:
			m.state = stateDisconnected
			m.held = peripheral.KeySet{}
		case host.EventLostConnection:
			m.state = stateLost
			m.held = peripheral.KeySet{}
		case host.EventInputKeys:
			m.held = msg.ev.Keys
		}
		return m, m.waitForEvent()

	case eventsClosedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Update):
			m.send(host.CommandUpdateDevice)
		case key.Matches(msg, keys.Disconnect):
			m.send(host.CommandDisconnectDevice)
		}
	}

	return m, nil
}

func (m Model) statusLine() string {
	switch m.state {
	case stateConnected:
		return connectedStyle.Render("● Connected")
	case stateDisconnected:
		return idleStyle.Render("○ Disconnected")
	case stateLost:
		return lostStyle.Render(fmt.Sprintf("%s Lost connection, retrying...", m.spin.View()))
	default:
		return idleStyle.Render(fmt.Sprintf("%s Searching for JukeBox...", m.spin.View()))
	}
}

func (m Model) heldKeys() string {
	if len(m.held) == 0 {
		return idleStyle.Render("(no inputs held)")
	}

	names := make([]string, 0, len(m.held))
	for k := range m.held {
		names = append(names, k.String())
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		b.WriteString(keyStyle.Render(n))
	}
	return b.String()
}

// View renders the status screen.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("JukeBox"))
	b.WriteString("\n\n")
	b.WriteString("  " + m.statusLine() + "\n")

	if m.state == stateConnected {
		b.WriteString(infoStyle.Render(fmt.Sprintf(
			"  %s surface · firmware %s · uid %s\n",
			m.link.Surface, m.link.Version, m.link.UID,
		)))
		b.WriteString("\n  " + m.heldKeys() + "\n")
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render("u update device · d disconnect · q quit"))
	b.WriteString("\n")

	return b.String()
}
