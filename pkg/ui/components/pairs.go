// Package components provides reusable TUI components.
package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/poolsync/pkg/ui/theme"
)

// PairRow is one tracked pair as the dashboard shows it.
type PairRow struct {
	Address  string
	Pair     string
	Reserve0 string
	Reserve1 string
	Block    uint64
	Valid    bool
	HasState bool
}

// PairsComponent renders the tracked pairs table.
type PairsComponent struct {
	table table.Model
	count int
}

// NewPairsComponent creates an empty pairs table with the given visible height.
func NewPairsComponent(height int) *PairsComponent {
	columns := []table.Column{
		{Title: "Pair", Width: 14},
		{Title: "Address", Width: 12},
		{Title: "Reserve 0", Width: 22},
		{Title: "Reserve 1", Width: 22},
		{Title: "Block", Width: 10},
		{Title: "State", Width: 8},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(theme.Border).
		BorderBottom(true).
		Bold(true).
		Foreground(theme.Primary)
	styles.Selected = styles.Selected.
		Foreground(theme.Text).
		Background(theme.Deep).
		Bold(false)
	t.SetStyles(styles)

	return &PairsComponent{table: t}
}

// SetRows replaces the table contents.
func (p *PairsComponent) SetRows(rows []PairRow) {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, table.Row{
			r.Pair,
			shortAddress(r.Address),
			r.Reserve0,
			r.Reserve1,
			fmt.Sprintf("%d", r.Block),
			stateLabel(r),
		})
	}
	p.table.SetRows(out)
	p.count = len(rows)
}

// SetHeight resizes the visible table area.
func (p *PairsComponent) SetHeight(h int) {
	if h < 3 {
		h = 3
	}
	p.table.SetHeight(h)
}

// Update forwards key messages for scrolling.
func (p *PairsComponent) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	p.table, cmd = p.table.Update(msg)
	return cmd
}

// Len returns the number of rows shown.
func (p *PairsComponent) Len() int {
	return p.count
}

// View renders the pairs table.
func (p *PairsComponent) View() string {
	header := theme.Section.Render(fmt.Sprintf("TRACKED PAIRS (%d)", p.count))
	if p.count == 0 {
		return header + "\n\n" + theme.Faint.Render("  No pairs tracked yet")
	}
	return header + "\n\n" + p.table.View()
}

func stateLabel(r PairRow) string {
	switch {
	case !r.HasState:
		return "pending"
	case !r.Valid:
		return "stale"
	default:
		return "live"
	}
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
