package app

import (
	"context"

	"github.com/fd1az/poolsync/business/statesync/domain"
)

// Strategy decides how a tracker obtains its first state and how it behaves
// toward the shared cache afterwards. It is chosen once per tracker.
type Strategy[S State[S]] interface {
	// Name identifies the strategy in logs and metrics.
	Name() string

	// bootstrap installs a first state when none was supplied and returns the
	// block from which future logs are subscribed.
	bootstrap(ctx context.Context, t *Tracker[S], blockNumber uint64) (uint64, domain.Path, error)

	writesSharedState() bool
	regenerates() bool
	selfHeals() bool
}

// StrategyFor selects the strategy for a role. Objects that do not need shared
// state behave as standalone on every role.
func StrategyFor[S State[S]](role domain.Role, needsSharedState bool) Strategy[S] {
	if !needsSharedState {
		return standalone[S]{}
	}
	switch role {
	case domain.RolePrimary:
		return primary[S]{}
	case domain.RoleReplica:
		return replica[S]{}
	default:
		return standalone[S]{}
	}
}

// standalone generates state from the chain and keeps it private.
type standalone[S State[S]] struct{}

func (standalone[S]) Name() string { return "standalone" }

func (standalone[S]) bootstrap(ctx context.Context, t *Tracker[S], blockNumber uint64) (uint64, domain.Path, error) {
	if err := t.generate(ctx, blockNumber); err != nil {
		return 0, domain.PathGenerated, err
	}
	return blockNumber, domain.PathGenerated, nil
}

func (standalone[S]) writesSharedState() bool { return false }
func (standalone[S]) regenerates() bool       { return false }
func (standalone[S]) selfHeals() bool         { return false }

// primary generates state from the chain and is the authoritative writer of
// its shared snapshot.
type primary[S State[S]] struct{}

func (primary[S]) Name() string { return "primary" }

func (primary[S]) bootstrap(ctx context.Context, t *Tracker[S], blockNumber uint64) (uint64, domain.Path, error) {
	return standalone[S]{}.bootstrap(ctx, t, blockNumber)
}

func (primary[S]) writesSharedState() bool { return true }
func (primary[S]) regenerates() bool       { return true }
func (primary[S]) selfHeals() bool         { return false }

// replica adopts the primary's snapshot and falls back to generating locally.
type replica[S State[S]] struct{}

func (replica[S]) Name() string { return "replica" }

func (replica[S]) bootstrap(ctx context.Context, t *Tracker[S], blockNumber uint64) (uint64, domain.Path, error) {
	if from, ok := t.adoptShared(ctx, blockNumber); ok {
		return from, domain.PathAdopted, nil
	}
	return standalone[S]{}.bootstrap(ctx, t, blockNumber)
}

func (replica[S]) writesSharedState() bool { return false }
func (replica[S]) regenerates() bool       { return false }
func (replica[S]) selfHeals() bool         { return true }
