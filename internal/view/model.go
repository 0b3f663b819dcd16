// Package view renders a running simulation in the terminal: a market table
// and a grid of agents shaded by their belief in the selected market.
package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/talgya/gossip-market/internal/engine"
)

type keyMap struct {
	Next key.Binding
	Prev key.Binding
	Quit key.Binding
}

var keys = keyMap{
	Next: key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab", "next market")),
	Prev: key.NewBinding(key.WithKeys("shift+tab", "left", "h"), key.WithHelp("shift+tab", "prev market")),
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// snapshotMsg carries a newly published snapshot.
type snapshotMsg struct{ snap *engine.Snapshot }

// closedMsg reports that the snapshot feed ended.
type closedMsg struct{}

// Model is the bubbletea model of the live view.
type Model struct {
	feed   <-chan *engine.Snapshot
	onQuit func()

	snap     *engine.Snapshot
	prev     []float64 // previous prices, for up/down colouring
	selected int
	finished bool

	width  int
	height int
}

// NewModel creates a view reading snapshots from feed. onQuit, if set, is
// called when the user quits before the feed ends.
func NewModel(feed <-chan *engine.Snapshot, onQuit func()) *Model {
	return &Model{feed: feed, onQuit: onQuit, width: 80, height: 24}
}

// Init starts listening to the feed.
func (m *Model) Init() tea.Cmd {
	return m.listen()
}

func (m *Model) listen() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.feed
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg{snap: snap}
	}
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			if !m.finished && m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		case key.Matches(msg, keys.Next):
			m.cycle(1)
		case key.Matches(msg, keys.Prev):
			m.cycle(-1)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case snapshotMsg:
		if m.snap != nil {
			m.prev = m.prev[:0]
			for _, mk := range m.snap.Markets {
				m.prev = append(m.prev, mk.Price)
			}
		}
		m.snap = msg.snap
		if m.selected >= len(m.snap.Markets) {
			m.selected = 0
		}
		return m, m.listen()

	case closedMsg:
		m.finished = true
	}
	return m, nil
}

func (m *Model) cycle(dir int) {
	if m.snap == nil || len(m.snap.Markets) == 0 {
		return
	}
	n := len(m.snap.Markets)
	m.selected = ((m.selected+dir)%n + n) % n
}

// Selected returns the index of the market whose beliefs are shown.
func (m *Model) Selected() int { return m.selected }

// View renders the model.
func (m *Model) View() string {
	if m.snap == nil {
		return "Waiting for the first step..."
	}

	var b strings.Builder
	status := fmt.Sprintf("run %s  step %d/%d", shortID(m.snap.RunID), m.snap.Step, m.snap.RunLength)
	if m.finished {
		status += "  (finished)"
	}
	b.WriteString(titleStyle.Render("gossip market") + "  " + helpStyle.Render(status))
	b.WriteString("\n")
	if m.snap.Halted != "" {
		b.WriteString(errStyle.Render("halted: "+m.snap.Halted) + "\n")
	}

	b.WriteString(panelStyle.Render(m.marketTable()))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(m.beliefGrid()))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf(
		"cash total %.0f  median %.2f  friends %.2f   %s • %s • %s",
		m.snap.TotalCash, m.snap.MedianCash, m.snap.FriendsMean,
		keys.Next.Help().Key+" "+keys.Next.Help().Desc,
		keys.Prev.Help().Key+" "+keys.Prev.Help().Desc,
		keys.Quit.Help().Key+" "+keys.Quit.Help().Desc,
	)))
	return b.String()
}

func (m *Model) marketTable() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-6s %12s %10s %8s %6s %6s %8s",
		"Market", "Price", "Vol", "Volume", "Buys", "Sells", "Belief")))
	for i, mk := range m.snap.Markets {
		price := fmt.Sprintf("%12.4f", mk.Price)
		if i < len(m.prev) {
			switch {
			case mk.Price > m.prev[i]:
				price = upStyle.Render(price)
			case mk.Price < m.prev[i]:
				price = downStyle.Render(price)
			}
		}
		row := fmt.Sprintf("%-6d %s %10.5f %8d %6d %6d %8.3f",
			mk.Market, price, mk.Volatility, mk.Volume, mk.Buys, mk.Sells, mk.MeanBelief)
		style := rowStyle
		if i == m.selected {
			style = selectedRowStyle
		}
		b.WriteString("\n")
		b.WriteString(style.Render(row))
	}
	return b.String()
}

// beliefGrid draws one cell per agent: green for a buy belief, red for sell.
func (m *Model) beliefGrid() string {
	cols := max(m.width-6, 10)
	rows := max(m.height-len(m.snap.Markets)-10, 3)

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Beliefs, market %d", m.selected)))
	shown := min(len(m.snap.Agents), cols*rows)
	for i := 0; i < shown; i++ {
		if i%cols == 0 {
			b.WriteString("\n")
		}
		a := m.snap.Agents[i]
		if m.selected < len(a.Beliefs) && a.Beliefs[m.selected] >= 0.5 {
			b.WriteString(upStyle.Render("█"))
		} else {
			b.WriteString(downStyle.Render("░"))
		}
	}
	if hidden := len(m.snap.Agents) - shown; hidden > 0 {
		b.WriteString("\n" + helpStyle.Render(fmt.Sprintf("+%d more", hidden)))
	}
	return lipgloss.NewStyle().MaxWidth(cols + 2).Render(b.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
