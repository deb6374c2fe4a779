// Package interactive provides a terminal user interface for driving the
// simulation: tick stepping, a device list and a device console
package interactive

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/krisarmstrong/netsim-go/pkg/engine"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	deviceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true)

	consoleStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("246"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")).
			Bold(true)
)

const maxConsoleLines = 200

// tickMsg drives free-running mode
type tickMsg time.Time

// Model is the bubbletea model wrapping an engine
type Model struct {
	eng      *engine.Engine
	topology string

	selected int
	input    string
	console  []string
	running  bool
	quitting bool
}

// New creates the TUI model for an engine
func New(eng *engine.Engine, topology string) Model {
	return Model{eng: eng, topology: topology}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

func tickEvery() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if !m.running {
			return m, nil
		}
		m.step(1)
		return m, tickEvery()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit

		case tea.KeyUp:
			if m.selected > 0 {
				m.selected--
			}
			return m, nil

		case tea.KeyDown:
			if m.selected < len(m.eng.Devices())-1 {
				m.selected++
			}
			return m, nil

		case tea.KeyEnter:
			line := strings.TrimSpace(m.input)
			m.input = ""
			if line == "" {
				return m, nil
			}
			return m.submit(line)

		case tea.KeyBackspace:
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
			return m, nil

		case tea.KeySpace:
			if m.input == "" {
				m.step(1)
				return m, nil
			}
			m.input += " "
			return m, nil

		case tea.KeyRunes:
			s := string(msg.Runes)
			if m.input == "" {
				switch s {
				case "q":
					m.quitting = true
					return m, tea.Quit
				case "r":
					m.running = !m.running
					if m.running {
						return m, tickEvery()
					}
					return m, nil
				}
			}
			m.input += s
			return m, nil
		}
	}
	return m, nil
}

func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	devices := m.eng.Devices()
	if len(devices) == 0 {
		return m, nil
	}
	d := devices[m.selected]
	m.appendConsole(fmt.Sprintf("%s> %s", d.Name(), line))
	_ = m.eng.EnqueueCommand(d.ID(), line)
	// One tick so the command executes and immediate output appears
	m.step(1)
	return m, nil
}

func (m *Model) step(n int) {
	m.eng.Run(n)
	for _, d := range m.eng.Devices() {
		for _, line := range d.ConsoleTake() {
			m.appendConsole(fmt.Sprintf("[%s] %s", d.Name(), line))
		}
	}
}

func (m *Model) appendConsole(line string) {
	m.console = append(m.console, line)
	if len(m.console) > maxConsoleLines {
		m.console = m.console[len(m.console)-maxConsoleLines:]
	}
}

// View implements tea.Model
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("netsim %s  tick %d", m.topology, m.eng.Clock().Now())))
	b.WriteString("\n\n")

	for i, d := range m.eng.Devices() {
		line := fmt.Sprintf("%s (%s)", d.Name(), d.Kind())
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString(deviceStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}

	tail := m.console
	if len(tail) > 12 {
		tail = tail[len(tail)-12:]
	}
	b.WriteString("\n")
	b.WriteString(consoleStyle.Render(strings.Join(append([]string{}, tail...), "\n")))
	b.WriteString("\n")

	b.WriteString(promptStyle.Render(fmt.Sprintf("%s> ", m.deviceName())))
	b.WriteString(m.input)
	b.WriteString("\n")
	b.WriteString(statusStyle.Render("space: tick  r: run/pause  up/down: device  enter: command  q: quit"))
	return b.String()
}

func (m Model) deviceName() string {
	devices := m.eng.Devices()
	if len(devices) == 0 {
		return "-"
	}
	return devices[m.selected].Name()
}

// Run starts the TUI
func Run(eng *engine.Engine, topology string) error {
	p := tea.NewProgram(New(eng, topology))
	_, err := p.Run()
	return err
}
