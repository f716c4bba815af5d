package reporting

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/risk-engine/internal/events"
	"github.com/ducminhle1904/risk-engine/internal/ledger"
)

// SessionReport is everything collected over one trading session.
type SessionReport struct {
	Final      ledger.PortfolioState
	Closed     []ledger.Position
	RiskEvents []events.RiskLimitBreached
}

// PrintSummary renders the session to stdout.
func PrintSummary(report SessionReport) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("SESSION SUMMARY")
	t.SetStyle(table.StyleRounded)

	totalRealized := 0.0
	wins := 0
	for _, p := range report.Closed {
		totalRealized += p.RealizedPnL
		if p.RealizedPnL > 0 {
			wins++
		}
	}

	t.AppendRows([]table.Row{
		{"💰 Final Equity", fmt.Sprintf("$%.2f", report.Final.Equity)},
		{"📈 Peak Equity", fmt.Sprintf("$%.2f", report.Final.PeakEquity)},
		{"💵 Realized P&L", fmt.Sprintf("$%.2f", totalRealized)},
		{"🔓 Still Open", fmt.Sprintf("%d", report.Final.OpenCount())},
		{"📊 Closed Trades", fmt.Sprintf("%d (%d wins)", len(report.Closed), wins)},
		{"⚠️ Risk Events", fmt.Sprintf("%d", len(report.RiskEvents))},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 24, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Println()

	if len(report.Closed) > 0 {
		printClosedPositions(report.Closed)
	}
}

func printClosedPositions(closed []ledger.Position) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("CLOSED POSITIONS")
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Symbol", "Side", "Quantity", "Entry", "Exit", "P&L", "Reason"})
	for _, p := range closed {
		t.AppendRow(table.Row{
			p.Symbol,
			p.Side,
			fmt.Sprintf("%.6f", p.Quantity),
			fmt.Sprintf("%.2f", p.EntryPrice),
			fmt.Sprintf("%.2f", p.ExitPrice),
			fmt.Sprintf("%.2f", p.RealizedPnL),
			p.CloseReason,
		})
	}
	t.Render()
	fmt.Println()
}
