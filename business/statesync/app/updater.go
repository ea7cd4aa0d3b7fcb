package app

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	chainDomain "github.com/fd1az/poolsync/business/blockchain/domain"
)

// logRun is a maximal run of logs sharing one block number.
type logRun struct {
	blockNumber uint64
	logs        []types.Log
}

func partitionRuns(logs []types.Log) []logRun {
	var runs []logRun
	for i := 0; i < len(logs); {
		j := i + 1
		for j < len(logs) && logs[j].BlockNumber == logs[i].BlockNumber {
			j++
		}
		runs = append(runs, logRun{blockNumber: logs[i].BlockNumber, logs: logs[i:j]})
		i = j
	}
	return runs
}

// Update replays logs, which must be sorted by (block number, log index),
// against history. It never fails: every problem is logged. A completed pass
// always clears the invalid flag.
func (t *Tracker[S]) Update(ctx context.Context, logs []types.Log, headers map[uint64]*chainDomain.Block, regenHint *uint64) {
	ctx, span := t.tracer.Start(ctx, "statesync.update",
		trace.WithAttributes(
			attribute.String("object", t.id.String()),
			attribute.Int("logs", len(logs)),
		),
	)
	defer span.End()

	t.metrics.updates.Add(ctx, 1, nsAttr(t.id.Namespace))
	t.checkOrder(ctx, logs)

	for _, run := range partitionRuns(logs) {
		header := headers[run.blockNumber]
		if header == nil {
			t.metrics.softError(ctx, t.id.Namespace, "missing_header")
			t.logger.Error(ctx, "block header missing for log run",
				"object", t.id.String(), "block", run.blockNumber)
		}

		if !t.hasCurrentState() {
			t.generateInline(ctx, run.blockNumber)
		}

		baseBlock, base, ok := t.baseFor(run.blockNumber)
		if !ok {
			// Expected gap: the next bootstrap or regeneration realigns.
			t.metrics.runsSkipped.Add(ctx, 1, nsAttr(t.id.Namespace))
			span.AddEvent("run_skipped", trace.WithAttributes(attribute.Int64("block", int64(run.blockNumber))))
			continue
		}

		next, changed := t.replay(ctx, base, run, header)
		if !changed {
			continue
		}

		t.SetState(ctx, next, run.blockNumber)
		t.metrics.runsApplied.Add(ctx, 1, nsAttr(t.id.Namespace))
		t.logger.Debug(ctx, "log run applied",
			"object", t.id.String(),
			"block", run.blockNumber,
			"base", baseBlock,
			"logs", len(run.logs))
	}

	t.mu.Lock()
	t.invalid = false
	hasState := t.hasState
	t.mu.Unlock()

	if hasState {
		return
	}

	if regenHint != nil && t.strategy.regenerates() {
		t.regenerateDetached(ctx, *regenHint)
	}
	t.scheduleSelfHeal(ctx)
}

// baseFor returns a private copy of the latest history entry older than bn.
func (t *Tracker[S]) baseFor(bn uint64) (uint64, S, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	k, s, ok := t.history.latestBefore(bn)
	if !ok {
		return 0, s, false
	}
	return k, s.Clone(), true
}

// replay folds the run's logs over base. Each log sees the last state a
// previous log produced, or base if none did.
func (t *Tracker[S]) replay(ctx context.Context, base S, run logRun, header *chainDomain.Block) (S, bool) {
	state := base
	changed := false

	for _, l := range run.logs {
		next, ok, err := t.collab.ProcessLog(ctx, state, l, header)
		if err != nil {
			t.metrics.softError(ctx, t.id.Namespace, "process_log")
			t.logger.Warn(ctx, "log processing failed",
				"object", t.id.String(),
				"block", l.BlockNumber,
				"index", l.Index,
				"tx", l.TxHash.Hex(),
				"error", err)
			continue
		}
		if ok {
			state = next
			changed = true
		}
	}

	return state, changed
}

// generateInline builds a first state synchronously. Failures are soft here.
func (t *Tracker[S]) generateInline(ctx context.Context, bn uint64) {
	state, err := t.collab.GenerateState(ctx, bn)
	if err != nil {
		t.metrics.softError(ctx, t.id.Namespace, "generate_state")
		t.logger.Error(ctx, "state generation during update failed",
			"object", t.id.String(), "block", bn, "error", err)
		return
	}
	t.SetState(ctx, state, bn)
}

// regenerateDetached regenerates at bn without blocking the caller.
func (t *Tracker[S]) regenerateDetached(ctx context.Context, bn uint64) {
	t.metrics.regenerations.Add(ctx, 1, nsAttr(t.id.Namespace))
	ctx = context.WithoutCancel(ctx)

	go func() {
		state, err := t.collab.GenerateState(ctx, bn)
		if err != nil {
			t.metrics.softError(ctx, t.id.Namespace, "regenerate_state")
			t.logger.Error(ctx, "background state regeneration failed",
				"object", t.id.String(), "block", bn, "error", err)
			return
		}
		t.SetState(ctx, state, bn)
		t.logger.Info(ctx, "state regenerated", "object", t.id.String(), "block", bn)
	}()
}

// checkOrder logs, but tolerates, logs that go backwards in (block, index).
func (t *Tracker[S]) checkOrder(ctx context.Context, logs []types.Log) {
	for i := 1; i < len(logs); i++ {
		prev, cur := logs[i-1], logs[i]
		if cur.BlockNumber > prev.BlockNumber ||
			(cur.BlockNumber == prev.BlockNumber && cur.Index >= prev.Index) {
			continue
		}
		t.metrics.softError(ctx, t.id.Namespace, "out_of_order")
		t.logger.Error(ctx, "logs out of order",
			"object", t.id.String(),
			"prev_block", prev.BlockNumber, "prev_index", prev.Index,
			"block", cur.BlockNumber, "index", cur.Index)
	}
}
