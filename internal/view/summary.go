package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/talgya/gossip-market/internal/engine"
)

// Summary renders the end-of-run report printed after a simulation.
func Summary(snap *engine.Snapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("run %s", snap.RunID)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-6s %12s %10s %10s %8s",
		"Market", "Price", "Vol", "Assets", "Belief")))
	for _, mk := range snap.Markets {
		b.WriteString("\n")
		b.WriteString(rowStyle.Render(fmt.Sprintf("%-6d %12.4f %10.5f %10s %8.3f",
			mk.Market, mk.Price, mk.Volatility, humanize.Comma(int64(mk.TotalAssets)), mk.MeanBelief)))
	}

	st := snap.Stats
	lines := []string{
		fmt.Sprintf("steps          %s", humanize.Comma(int64(st.Steps))),
		fmt.Sprintf("traded volume  %s", humanize.Comma(st.Volume)),
		fmt.Sprintf("rounds         %s crossed, %s without a cross", humanize.Comma(int64(st.Crosses)), humanize.Comma(int64(st.NoCrosses))),
		fmt.Sprintf("total cash     %s", humanize.Commaf(snap.TotalCash)),
		fmt.Sprintf("median cash    %.2f", snap.MedianCash),
		fmt.Sprintf("friends/agent  %.3f (%s added)", snap.FriendsMean, humanize.Comma(st.FriendsAdded)),
	}
	b.WriteString("\n\n")
	b.WriteString(rowStyle.Render(strings.Join(lines, "\n")))
	if snap.Halted != "" {
		b.WriteString("\n" + errStyle.Render("halted: "+snap.Halted))
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primaryColor).
		Padding(0, 1).
		Render(b.String())
}
