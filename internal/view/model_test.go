package view

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/talgya/gossip-market/internal/agents"
	"github.com/talgya/gossip-market/internal/engine"
)

func snapshot(step int, prices ...float64) *engine.Snapshot {
	snap := &engine.Snapshot{RunID: "0123456789abcdef", Step: step, RunLength: 100}
	for i, p := range prices {
		snap.Markets = append(snap.Markets, engine.MarketSnapshot{
			Clearing: engine.Clearing{Market: agents.MarketID(i), Price: p},
		})
	}
	for i := 0; i < 20; i++ {
		snap.Agents = append(snap.Agents, engine.AgentSnapshot{Beliefs: make([]float64, len(prices))})
	}
	return snap
}

func TestModelFollowsFeed(t *testing.T) {
	feed := make(chan *engine.Snapshot, 2)
	m := NewModel(feed, nil)
	if !strings.Contains(m.View(), "Waiting") {
		t.Errorf("initial view = %q", m.View())
	}

	feed <- snapshot(1, 100, 50)
	msg := m.Init()()
	if _, ok := msg.(snapshotMsg); !ok {
		t.Fatalf("Init produced %T", msg)
	}
	_, cmd := m.Update(msg)
	if cmd == nil {
		t.Fatal("model stopped listening after a snapshot")
	}
	out := m.View()
	if !strings.Contains(out, "step 1/100") || !strings.Contains(out, "01234567") {
		t.Errorf("view missing status: %q", out)
	}

	close(feed)
	if _, ok := cmd().(closedMsg); !ok {
		t.Fatal("closed feed not reported")
	}
	m.Update(closedMsg{})
	if !strings.Contains(m.View(), "finished") {
		t.Error("view does not show the finished state")
	}
}

func TestModelCyclesMarkets(t *testing.T) {
	m := NewModel(make(chan *engine.Snapshot), nil)
	m.Update(snapshotMsg{snap: snapshot(3, 1, 2, 3)})

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if m.Selected() != 2 {
		t.Fatalf("selected = %d, want 2", m.Selected())
	}
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if m.Selected() != 0 {
		t.Fatalf("selected = %d, want wrap to 0", m.Selected())
	}
	m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.Selected() != 2 {
		t.Fatalf("selected = %d, want wrap to 2", m.Selected())
	}
}

func TestQuitCancelsRun(t *testing.T) {
	cancelled := false
	m := NewModel(make(chan *engine.Snapshot), func() { cancelled = true })
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled {
		t.Error("quit did not cancel the run")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quit did not stop the program")
	}
}

func TestSummaryMentionsTotals(t *testing.T) {
	snap := snapshot(10, 101.25)
	snap.Stats = engine.SimStats{Steps: 10, Volume: 12345}
	snap.Halted = "step 9: boom"
	out := Summary(snap)
	for _, want := range []string{"12,345", "101.2500", "halted: step 9: boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
