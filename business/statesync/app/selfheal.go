package app

import (
	"context"
	"time"
)

// healRetryAfter bounds how long a deferred fetch that never fires blocks the next one.
const healRetryAfter = 2 * time.Minute

// scheduleSelfHeal asks the shared cache for the primary's snapshot when a
// replica has no state. At most one fetch is outstanding per tracker.
func (t *Tracker[S]) scheduleSelfHeal(ctx context.Context) {
	if !t.strategy.selfHeals() || t.env.Cache == nil {
		return
	}
	now := t.now().UnixNano()
	since := t.healSince.Load()
	if since != 0 && now-since < int64(healRetryAfter) {
		return
	}
	if !t.healSince.CompareAndSwap(since, now) {
		return
	}

	ctx = context.WithoutCancel(ctx)
	t.metrics.selfHeals.Add(ctx, 1, nsAttr(t.id.Namespace))

	t.env.Cache.ScheduleDeferredGet(ctx, t.id.CacheBucket(), t.id.CacheKey(), func(data []byte) {
		defer t.healSince.Store(0)
		t.adoptDeferred(ctx, data)
	})
}

func (t *Tracker[S]) adoptDeferred(ctx context.Context, data []byte) {
	snapshot, err := t.codec.Decode(data)
	if err != nil {
		t.metrics.softError(ctx, t.id.Namespace, "snapshot_decode")
		t.logger.Error(ctx, "deferred snapshot decode failed", "object", t.id.String(), "error", err)
		return
	}
	if !snapshot.HasState() || snapshot.BlockNumber == 0 {
		t.logger.Debug(ctx, "deferred snapshot empty", "object", t.id.String())
		return
	}

	if t.hasCurrentState() {
		return
	}

	t.SetState(ctx, *snapshot.State, snapshot.BlockNumber)
	t.logger.Info(ctx, "state adopted from shared cache",
		"object", t.id.String(), "block", snapshot.BlockNumber)
}
