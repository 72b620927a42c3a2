package monitor

import (
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// keyMap defines the dashboard key bindings.
type keyMap struct {
	Quit       key.Binding
	Restart    key.Binding
	Monitoring key.Binding
	NextPage   key.Binding
	PrevPage   key.Binding
	JumpPage   key.Binding
	Collapse   key.Binding
	Help       key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q / Ctrl+C", "Quit and close every stream"),
	),
	Restart: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "Restart streams and clear graphs"),
	),
	Monitoring: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "Toggle monitoring on or off"),
	),
	NextPage: key.NewBinding(
		key.WithKeys("tab", "l", "right"),
		key.WithHelp("tab / l / →", "Next page"),
	),
	PrevPage: key.NewBinding(
		key.WithKeys("shift+tab", "h", "left"),
		key.WithHelp("S-tab / h / ←", "Previous page"),
	),
	JumpPage: key.NewBinding(
		key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
		key.WithHelp("1-9", "Jump to page"),
	),
	Collapse: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "Close help"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "Toggle this help"),
	),
}

// helpOrder is the order bindings appear in the help overlay.
func (k keyMap) helpOrder() []key.Binding {
	return []key.Binding{k.Quit, k.Restart, k.Monitoring, k.NextPage, k.PrevPage, k.JumpPage, k.Help}
}

// HandleKeyMsg processes keyboard input. Returns true if the key was handled.
func (m *Model) HandleKeyMsg(msg tea.KeyMsg) (bool, tea.Cmd) {
	if key.Matches(msg, keys.Help) {
		m.showHelp = !m.showHelp
		return true, nil
	}
	if m.showHelp && key.Matches(msg, keys.Collapse) {
		m.showHelp = false
		return true, nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return true, m.quit()

	case key.Matches(msg, keys.Restart):
		return true, m.restart()

	case key.Matches(msg, keys.Monitoring):
		return true, m.toggleMonitoring()

	case key.Matches(msg, keys.NextPage):
		return true, m.switchPage((m.current + 1) % len(m.pages))

	case key.Matches(msg, keys.PrevPage):
		return true, m.switchPage((m.current - 1 + len(m.pages)) % len(m.pages))

	case key.Matches(msg, keys.JumpPage):
		n, _ := strconv.Atoi(msg.String())
		if n >= 1 && n <= len(m.pages) {
			return true, m.switchPage(n - 1)
		}
	}

	return false, nil
}

// switchPage opens page i unless it is already showing or monitoring is off.
func (m *Model) switchPage(i int) tea.Cmd {
	if i == m.current && m.page != nil {
		return nil
	}
	if !m.mux.MonitoringEnabled() {
		// Remember the selection; the stream opens when monitoring resumes.
		m.current = i
		m.coord.Navigate(m.pages[i].Route())
		return nil
	}
	return m.openPage(i)
}
