package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/poolsync/business/statesync/domain"
	"github.com/fd1az/poolsync/internal/logger"
)

// DefaultHistoryWindow is the number of blocks of history kept behind the current state.
const DefaultHistoryWindow uint64 = 64

// Environment is the process-wide wiring shared by every tracker.
type Environment struct {
	Role             domain.Role
	Cache            SharedCache
	Writer           *CacheWriter
	Logs             LogSubscriber
	Logger           logger.LoggerInterface
	Metrics          *Metrics
	MarkerKey        string // primary's current block number
	NewObjectChannel string // replicas ask the primary to track an object here
}

// TrackerConfig holds per-object settings.
type TrackerConfig struct {
	ID               domain.ObjectID
	HistoryWindow    uint64
	NeedsSharedState bool
}

// Tracker is one tracked object: its current snapshot, bounded history and
// validity flag. Mutating calls must come from a single goroutine at a time;
// the mutex only lets readers observe a consistent view while that writer runs.
type Tracker[S State[S]] struct {
	id       domain.ObjectID
	window   uint64
	collab   Collaborator[S]
	strategy Strategy[S]
	codec    Codec[S]
	env      Environment
	logger   logger.LoggerInterface
	metrics  *Metrics
	tracer   trace.Tracer

	mu          sync.RWMutex
	state       S
	hasState    bool
	blockNumber uint64
	history     *history[S]
	invalid     bool

	healSince atomic.Int64
	now       func() time.Time
}

var _ Sink = (*Tracker[noState])(nil)

// NewTracker creates a tracker. The bootstrap strategy is chosen once here from
// the environment's role and cfg.NeedsSharedState.
func NewTracker[S State[S]](cfg TrackerConfig, collab Collaborator[S], env Environment) *Tracker[S] {
	window := cfg.HistoryWindow
	if window == 0 {
		window = DefaultHistoryWindow
	}
	if env.Logger == nil {
		env.Logger = logger.NewNop()
	}
	if env.Metrics == nil {
		env.Metrics, _ = NewMetrics()
	}

	return &Tracker[S]{
		id:       cfg.ID,
		window:   window,
		collab:   collab,
		strategy: StrategyFor[S](env.Role, cfg.NeedsSharedState),
		codec:    JSONCodec[S]{},
		env:      env,
		logger:   env.Logger,
		metrics:  env.Metrics,
		tracer:   otel.Tracer(tracerName),
		history:  newHistory[S](),
		now:      time.Now,
	}
}

// ID returns the object's identity.
func (t *Tracker[S]) ID() domain.ObjectID {
	return t.id
}

// Strategy returns the bootstrap strategy in use.
func (t *Tracker[S]) Strategy() Strategy[S] {
	return t.strategy
}

// SetState records state at blockNumber, promotes it when it is not older than
// the current state, prunes history and, for the cache-authoritative writer,
// queues a write-back. blockNumber 0 is rejected.
func (t *Tracker[S]) SetState(ctx context.Context, state S, blockNumber uint64) {
	if blockNumber == 0 {
		t.logger.Error(ctx, "refusing to set state at block 0", "object", t.id.String())
		return
	}

	t.mu.Lock()
	t.setStateLocked(ctx, state.Clone(), blockNumber)
	t.mu.Unlock()
}

// setStateLocked takes ownership of state.
func (t *Tracker[S]) setStateLocked(ctx context.Context, state S, blockNumber uint64) {
	wasEmpty := t.history.len() == 0
	t.history.set(blockNumber, state)

	if wasEmpty || blockNumber >= t.blockNumber {
		t.state = state
		t.hasState = true
		t.blockNumber = blockNumber
		t.invalid = false
	}

	if t.blockNumber > t.window {
		t.history.pruneTo(t.blockNumber - t.window)
	}

	if t.strategy.writesSharedState() {
		t.enqueueWriteBack(ctx, state, blockNumber)
	}
}

func (t *Tracker[S]) enqueueWriteBack(ctx context.Context, state S, blockNumber uint64) {
	if t.env.Writer == nil {
		return
	}
	frozen := state.Clone()
	codec := t.codec
	t.env.Writer.Enqueue(ctx, WriteRequest{
		Bucket:      t.id.CacheBucket(),
		Key:         t.id.CacheKey(),
		BlockNumber: blockNumber,
		encode: func() ([]byte, error) {
			return codec.Encode(domain.NewSnapshot(frozen, blockNumber))
		},
	})
}

// State returns the current state unless it is invalid, missing, or older than
// minBlockNumber. Trackers whose collaborator reports IsTracking skip the age check.
func (t *Tracker[S]) State(minBlockNumber uint64) (S, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var zero S
	if t.invalid || !t.hasState {
		return zero, false
	}
	if t.collab.IsTracking() || t.blockNumber >= minBlockNumber {
		return t.state.Clone(), true
	}
	return zero, false
}

// StaleState returns the current state regardless of validity or age.
func (t *Tracker[S]) StaleState() (S, uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.hasState {
		var zero S
		return zero, t.blockNumber, false
	}
	return t.state.Clone(), t.blockNumber, true
}

// BlockNumber returns the current block number and whether a state exists.
func (t *Tracker[S]) BlockNumber() (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.blockNumber, t.hasState
}

// IsValid reports whether the tracker has a state that is not invalidated.
func (t *Tracker[S]) IsValid() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hasState && !t.invalid
}

// HistoryBlocks returns the retained history block numbers in ascending order.
func (t *Tracker[S]) HistoryBlocks() []uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.history.blockNumbers()
}

// clearLocked marks the state absent at blockNumber.
func (t *Tracker[S]) clearLocked(blockNumber uint64) {
	var zero S
	t.state = zero
	t.hasState = false
	t.blockNumber = blockNumber
}

func (t *Tracker[S]) hasCurrentState() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hasState
}

// noState is used only for the compile-time Sink assertion.
type noState struct{}

func (noState) Clone() noState { return noState{} }
