// Package theme is the dashboard palette shared by the view and its components.
package theme

import "github.com/charmbracelet/lipgloss"

var (
	Primary = lipgloss.Color("#2563EB")
	Deep    = lipgloss.Color("#1E3A8A")
	Text    = lipgloss.Color("#FFFFFF")
	OK      = lipgloss.Color("#10B981")
	Danger  = lipgloss.Color("#EF4444")
	Warning = lipgloss.Color("#F59E0B")
	Muted   = lipgloss.Color("#6B7280")
	Border  = lipgloss.Color("#374151")
	Head    = lipgloss.Color("#60A5FA")
)

var (
	Title   = lipgloss.NewStyle().Bold(true).Foreground(Text).Background(Primary).Padding(0, 2)
	Section = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	Box     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(Border).Padding(0, 1)
	Help    = lipgloss.NewStyle().Foreground(Muted).Padding(0, 1)

	Value = lipgloss.NewStyle().Bold(true).Foreground(Text)
	Faint = lipgloss.NewStyle().Foreground(Muted)
	Block = lipgloss.NewStyle().Foreground(Head)
	Up    = lipgloss.NewStyle().Bold(true).Foreground(OK)
	Down  = lipgloss.NewStyle().Bold(true).Foreground(Danger)
	Warn  = lipgloss.NewStyle().Bold(true).Foreground(Warning)
	Error = lipgloss.NewStyle().Foreground(Danger)
)

// Role renders a sync role badge: primaries write the shared cache, replicas
// only read it.
func Role(role string) string {
	c := Primary
	switch role {
	case "primary":
		c = OK
	case "replica":
		c = Head
	}
	return lipgloss.NewStyle().Bold(true).Foreground(c).Render(role)
}
