package app

import (
	"context"
)

// Invalidate marks the current state as unusable until the next successful
// update, rollback restore or install.
func (t *Tracker[S]) Invalidate() {
	t.mu.Lock()
	t.invalid = true
	t.mu.Unlock()

	t.metrics.invalidations.Add(context.Background(), 1, nsAttr(t.id.Namespace))
}

// Rollback handles a reorg back to blockNumber. An invalid tracker is restored
// to the newest surviving history entry. A valid one keeps its state and only
// drops history above blockNumber.
func (t *Tracker[S]) Rollback(ctx context.Context, blockNumber uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.rollbacks.Add(ctx, 1, nsAttr(t.id.Namespace))

	if !t.invalid {
		current, hasState := t.blockNumber, t.hasState
		removed := t.history.deleteAbove(blockNumber, func(k uint64) bool {
			return hasState && k == current
		})
		t.logger.Debug(ctx, "history trimmed after reorg",
			"object", t.id.String(), "block", blockNumber, "removed", removed)
		return
	}

	t.history.deleteAbove(blockNumber, nil)

	last, ok := t.history.last()
	if !ok {
		t.clearLocked(blockNumber)
		t.logger.Warn(ctx, "no anchor survived rollback, state cleared",
			"object", t.id.String(), "block", blockNumber)
		return
	}

	state, _ := t.history.get(last)
	t.clearLocked(last)
	t.setStateLocked(ctx, state, last)

	t.logger.Info(ctx, "state rolled back",
		"object", t.id.String(), "block", blockNumber, "restored", last)
}

// Restart moves the tracking point forward to blockNumber. Older history is
// discarded and a state older than blockNumber is dropped so the next update
// regenerates from there.
func (t *Tracker[S]) Restart(ctx context.Context, blockNumber uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.history.deleteBelow(blockNumber)
	if t.blockNumber < blockNumber {
		t.clearLocked(blockNumber)
	}

	t.logger.Info(ctx, "tracking restarted", "object", t.id.String(), "block", blockNumber)
}

// Resume regenerates a standalone tracker at blockNumber when a restart left
// it without state. Primaries regenerate from the update hint and replicas
// self-heal from the shared cache, so for them this is a no-op.
func (t *Tracker[S]) Resume(ctx context.Context, blockNumber uint64) {
	if blockNumber == 0 || t.hasCurrentState() {
		return
	}
	if t.strategy.regenerates() || t.strategy.selfHeals() {
		return
	}
	t.logger.Info(ctx, "regenerating after restart", "object", t.id.String(), "block", blockNumber)
	t.regenerateDetached(ctx, blockNumber)
}
