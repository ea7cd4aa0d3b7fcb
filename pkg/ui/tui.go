package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fd1az/poolsync/pkg/ui/components"
	"github.com/fd1az/poolsync/pkg/ui/theme"
)

// Phase represents the current UI phase.
type Phase string

const (
	PhaseStartup   Phase = "startup"
	PhaseDashboard Phase = "dashboard"
)

// StartupStep represents a step in the startup process.
type StartupStep struct {
	Name   string
	Status StepStatus
}

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

var startupOrder = []string{"config", "ethereum", "statesync", "pairs"}

const (
	maxActivity = 8
	maxErrors   = 3
)

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	pairs  *components.PairsComponent
	status *components.StatusComponent
	stats  *components.StatsComponent

	keys    KeyMap
	help    help.Model
	spinner spinner.Model

	phase        Phase
	startupSteps map[string]*StartupStep
	startupTime  time.Time

	quitting     bool
	paused       bool
	width        int
	height       int
	currentBlock uint64
	gasPrice     float64
	lastUpdate   time.Time
	errors       []ErrorEntry
	activityFeed []string
}

// New creates a new TUI model.
func New() Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Warning)

	return Model{
		pairs:   components.NewPairsComponent(10),
		status:  components.NewStatusComponent(),
		stats:   components.NewStatsComponent(),
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spinner: sp,
		phase:   PhaseStartup,
		startupSteps: map[string]*StartupStep{
			"config":    {Name: "Loading configuration", Status: StepPending},
			"ethereum":  {Name: "Connecting to Ethereum", Status: StepPending},
			"statesync": {Name: "Starting state sync", Status: StepPending},
			"pairs":     {Name: "Tracking pairs", Status: StepPending},
		},
		startupTime:  time.Now(),
		errors:       make([]ErrorEntry, 0, maxErrors),
		activityFeed: make([]string, 0, maxActivity),
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
			return m, nil
		case key.Matches(msg, m.keys.Errors):
			m.errors = m.errors[:0]
			return m, nil
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
		return m, m.pairs.Update(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.pairs.SetHeight(msg.Height - 20)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case refreshMsg:
		return m, tickCmd()

	case PairsMsg:
		if !m.paused {
			m.pairs.SetRows(msg.Rows)
		}
		if len(msg.Rows) > 0 {
			m.markStep("pairs", StepDone)
		}
		m.lastUpdate = time.Now()

	case SyncStatusMsg:
		prev := m.stats.Stats()
		m.stats.Update(msg.Role, msg.Status)
		if msg.Status.Reorgs > prev.Reorgs {
			m.activityFeed = addActivity(m.activityFeed,
				fmt.Sprintf("Reorg: rolled back to #%d", msg.Status.LastReorgTo))
		}
		m.markStep("statesync", StepDone)
		m.lastUpdate = time.Now()

	case QuoteMsg:
		m.stats.AddQuote()
		m.activityFeed = addActivity(m.activityFeed, fmt.Sprintf("Quote %s: %s → %s (impact %.2f%%) @#%d",
			msg.Pair, msg.AmountIn, msg.AmountOut, msg.ImpactPct, msg.BlockNumber))
		m.lastUpdate = time.Now()

	case ConnectionStatusMsg:
		m.status.Update(components.ConnectionStatus{
			Name:       msg.Name,
			Connected:  msg.Connected,
			Latency:    msg.Latency,
			LastUpdate: time.Now(),
		})
		stepKey := strings.ToLower(msg.Name)
		if msg.Connected {
			m.markStep(stepKey, StepConnected)
		} else {
			m.markStep(stepKey, StepConnecting)
		}
		m.markStep("config", StepDone)
		m.lastUpdate = time.Now()

	case BlockMsg:
		if msg.Number != m.currentBlock {
			m.currentBlock = msg.Number
			m.activityFeed = addActivity(m.activityFeed, fmt.Sprintf("Block #%d", msg.Number))
		}
		m.phase = PhaseDashboard
		m.lastUpdate = time.Now()

	case GasPriceMsg:
		m.gasPrice = msg.GweiPrice

	case ErrorMsg:
		if msg.Error == nil {
			break
		}
		m.stats.AddError()
		m.errors = append(m.errors, ErrorEntry{Message: msg.Error.Error(), Timestamp: time.Now()})
		if len(m.errors) > maxErrors {
			m.errors = m.errors[len(m.errors)-maxErrors:]
		}

	case StartupMsg:
		m.markStep(msg.Step, msg.Status)
	}

	if m.phase == PhaseStartup && m.startupComplete() {
		m.phase = PhaseDashboard
	}
	return m, nil
}

func (m Model) markStep(name string, status StepStatus) {
	if step, ok := m.startupSteps[name]; ok {
		step.Status = status
	}
}

func (m Model) startupComplete() bool {
	for _, step := range m.startupSteps {
		if !step.Status.finished() {
			return false
		}
	}
	return true
}

// addActivity appends a timestamped line and keeps the last maxActivity.
func addActivity(feed []string, message string) []string {
	line := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), message)
	feed = append(feed, line)
	if len(feed) > maxActivity {
		feed = feed[len(feed)-maxActivity:]
	}
	return feed
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}
	if m.phase == PhaseStartup {
		return m.renderStartupScreen()
	}

	var b strings.Builder

	b.WriteString(theme.Title.Render(" poolsync "))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	width := m.width - 4
	if width < 40 {
		width = 40
	}
	b.WriteString(theme.Box.Width(width).Render(m.pairs.View()))
	b.WriteString("\n")

	stats := m.stats.View()
	activity := m.renderActivityFeed()
	if m.width > 110 {
		left := theme.Box.Width(m.width/2 - 3).Render(stats)
		right := theme.Box.Width(m.width/2 - 3).Render(activity)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	} else {
		b.WriteString(theme.Box.Width(width).Render(stats))
		b.WriteString("\n")
		b.WriteString(theme.Box.Width(width).Render(activity))
	}
	b.WriteString("\n")

	if len(m.errors) > 0 {
		b.WriteString(m.renderErrors())
	}

	if m.paused {
		b.WriteString(theme.Warn.Render("⏸ TABLE FROZEN"))
		b.WriteString(" • ")
	}
	b.WriteString(theme.Help.Render(m.help.View(m.keys)))

	return b.String()
}

func (m Model) renderActivityFeed() string {
	var sb strings.Builder
	sb.WriteString(theme.Section.Render("ACTIVITY"))
	sb.WriteString("\n")

	if len(m.activityFeed) == 0 {
		sb.WriteString(theme.Faint.Render("  Waiting for blocks..."))
		return sb.String()
	}
	for _, line := range m.activityFeed {
		if strings.Contains(line, "Block #") {
			sb.WriteString(theme.Block.Render("  " + line))
		} else {
			sb.WriteString(theme.Faint.Render("  " + line))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderErrors() string {
	var sb strings.Builder
	sb.WriteString(theme.Error.Bold(true).Render("ERRORS"))
	sb.WriteString("\n")
	for _, e := range m.errors {
		ago := time.Since(e.Timestamp).Round(time.Second)
		sb.WriteString(theme.Error.Render("  • " + e.Message + " "))
		sb.WriteString(theme.Faint.Render(fmt.Sprintf("(%s ago)", ago)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderStartupScreen() string {
	success := lipgloss.NewStyle().Foreground(theme.OK)
	failed := lipgloss.NewStyle().Foreground(theme.Danger)

	var sb strings.Builder
	sb.WriteString("\n\n  ")
	sb.WriteString(theme.Title.Render(" poolsync "))
	sb.WriteString("\n\n")
	sb.WriteString(lipgloss.NewStyle().Bold(true).Render("  Starting up..."))
	sb.WriteString("\n\n")

	for _, name := range startupOrder {
		step := m.startupSteps[name]
		var icon, text string
		switch step.Status {
		case StepConnected, StepDone:
			icon, text = success.Render("✓"), success.Render("Ready")
		case StepConnecting:
			icon, text = m.spinner.View(), theme.Warn.UnsetBold().Render("Working...")
		case StepFailed:
			icon, text = failed.Render("✗"), failed.Render("Failed")
		default:
			icon, text = theme.Faint.Render("○"), theme.Faint.Render("Pending")
		}
		sb.WriteString(fmt.Sprintf("  %s %s %s\n", icon, theme.Faint.Render(step.Name), text))
	}

	sb.WriteString("\n")
	elapsed := time.Since(m.startupTime).Round(time.Second)
	sb.WriteString(theme.Faint.Render(fmt.Sprintf("  Elapsed: %s", elapsed)))
	sb.WriteString("\n\n")
	sb.WriteString(theme.Faint.Render("  Waiting for the first block..."))
	sb.WriteString("\n")
	return sb.String()
}

func (m Model) renderStatusBar() string {
	parts := []string{fmt.Sprintf("Block: #%d", m.currentBlock)}
	if m.gasPrice > 0 {
		parts = append(parts, fmt.Sprintf("Gas: %.1f gwei", m.gasPrice))
	}
	parts = append(parts, m.status.View())
	if !m.lastUpdate.IsZero() {
		ago := time.Since(m.lastUpdate).Round(time.Second)
		parts = append(parts, theme.Faint.Render(fmt.Sprintf("Updated: %s ago", ago)))
	}
	return strings.Join(parts, "  │  ")
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// Run starts the Bubble Tea program and blocks until it exits.
func Run() error {
	Program = tea.NewProgram(New(), tea.WithAltScreen())
	_, err := Program.Run()
	return err
}

// Send sends a message to the running program.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
}
