package ui

import (
	"time"

	"github.com/fd1az/poolsync/pkg/ui/components"
)

// StepStatus is the progress of one startup step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepConnecting StepStatus = "connecting"
	StepConnected  StepStatus = "connected"
	StepDone       StepStatus = "done"
	StepFailed     StepStatus = "failed"
)

func (s StepStatus) finished() bool { return s == StepConnected || s == StepDone }

// StartupMsg advances a startup step: config, ethereum, statesync or pairs.
type StartupMsg struct {
	Step   string
	Status StepStatus
}

// PairsMsg replaces the tracked pair table unless it is frozen.
type PairsMsg struct {
	Rows []components.PairRow
}

// SyncStatusMsg carries the syncer's role and counters. A rise in Reorgs is
// reported in the activity feed.
type SyncStatusMsg struct {
	Role   string
	Status components.SyncStats
}

// QuoteMsg reports a quote computed against tracked reserves.
type QuoteMsg struct {
	Pair        string
	AmountIn    string
	AmountOut   string
	ImpactPct   float64
	BlockNumber uint64
}

type ConnectionStatusMsg struct {
	Name      string
	Connected bool
	Latency   time.Duration
}

// BlockMsg moves the dashboard to a new head and ends the startup screen.
type BlockMsg struct {
	Number    uint64
	Timestamp time.Time
}

type GasPriceMsg struct {
	GweiPrice float64
}

type ErrorMsg struct {
	Error error
}

// refreshMsg redraws relative timestamps once a second.
type refreshMsg struct{}
