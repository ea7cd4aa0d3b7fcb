package components

import (
	"fmt"

	"github.com/fd1az/poolsync/pkg/ui/theme"
)

// SyncStats holds the syncer counters for display.
type SyncStats struct {
	Head          uint64
	Subscriptions int
	Reorgs        int
	LastReorgTo   uint64
}

// StatsComponent renders sync statistics.
type StatsComponent struct {
	role   string
	stats  SyncStats
	quotes int
	errors int
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{role: "standalone"}
}

// Update replaces the sync counters.
func (s *StatsComponent) Update(role string, stats SyncStats) {
	if role != "" {
		s.role = role
	}
	s.stats = stats
}

// AddQuote counts a computed quote.
func (s *StatsComponent) AddQuote() { s.quotes++ }

// AddError counts a reported error.
func (s *StatsComponent) AddError() { s.errors++ }

// Stats returns the last sync counters.
func (s *StatsComponent) Stats() SyncStats { return s.stats }

// View renders the stats component.
func (s *StatsComponent) View() string {
	reorgs := theme.Value.Render(fmt.Sprintf("%d", s.stats.Reorgs))
	if s.stats.Reorgs > 0 {
		reorgs = theme.Warn.Render(fmt.Sprintf("%d (last to #%d)", s.stats.Reorgs, s.stats.LastReorgTo))
	}
	errs := theme.Value.Render(fmt.Sprintf("%d", s.errors))
	if s.errors > 0 {
		errs = theme.Down.Render(fmt.Sprintf("%d", s.errors))
	}

	return theme.Section.Render("SYNC") + "\n" +
		fmt.Sprintf("Role: %s  │  Head: %s  │  Subscriptions: %s\n",
			theme.Role(s.role),
			theme.Value.Render(fmt.Sprintf("#%d", s.stats.Head)),
			theme.Value.Render(fmt.Sprintf("%d", s.stats.Subscriptions)),
		) +
		fmt.Sprintf("Reorgs: %s  │  Quotes: %s  │  Errors: %s",
			reorgs,
			theme.Value.Render(fmt.Sprintf("%d", s.quotes)),
			errs,
		)
}
