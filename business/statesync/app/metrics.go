package app

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	tracerName = "statesync"
	meterName  = "statesync"
)

// Metrics holds OTEL instruments shared by every tracker in the process.
type Metrics struct {
	updates          metric.Int64Counter
	runsApplied      metric.Int64Counter
	runsSkipped      metric.Int64Counter
	softErrors       metric.Int64Counter
	rollbacks        metric.Int64Counter
	invalidations    metric.Int64Counter
	bootstraps       metric.Int64Counter
	cacheWrites      metric.Int64Counter
	cacheWriteErrors metric.Int64Counter
	cacheDropped     metric.Int64Counter
	selfHeals        metric.Int64Counter
	regenerations    metric.Int64Counter
	reorgs           metric.Int64Counter
	restarts         metric.Int64Counter
}

// NewMetrics creates the engine's instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.updates, "statesync_updates_total", "Update passes over log batches", "{update}"},
		{&m.runsApplied, "statesync_runs_applied_total", "Log runs that produced a new state", "{run}"},
		{&m.runsSkipped, "statesync_runs_skipped_total", "Log runs dropped for lack of an older anchor", "{run}"},
		{&m.softErrors, "statesync_soft_errors_total", "Logged, non-propagated failures", "{error}"},
		{&m.rollbacks, "statesync_rollbacks_total", "Rollbacks applied", "{rollback}"},
		{&m.invalidations, "statesync_invalidations_total", "Explicit invalidations", "{invalidation}"},
		{&m.bootstraps, "statesync_bootstraps_total", "Initializations by bootstrap path", "{bootstrap}"},
		{&m.cacheWrites, "statesync_cache_writes_total", "Snapshot write-backs attempted", "{write}"},
		{&m.cacheWriteErrors, "statesync_cache_write_errors_total", "Snapshot write-backs that failed", "{error}"},
		{&m.cacheDropped, "statesync_cache_writes_dropped_total", "Snapshot write-backs dropped on a full queue", "{write}"},
		{&m.selfHeals, "statesync_self_heals_total", "Deferred shared-cache fetches scheduled", "{fetch}"},
		{&m.regenerations, "statesync_regenerations_total", "Detached state regenerations", "{regeneration}"},
		{&m.reorgs, "statesync_reorgs_total", "Chain reorganizations reconciled", "{reorg}"},
		{&m.restarts, "statesync_restarts_total", "Subscriptions restarted at the head", "{restart}"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	return m, nil
}

func (m *Metrics) softError(ctx context.Context, namespace, kind string) {
	m.softErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", namespace),
		attribute.String("kind", kind),
	))
}

func nsAttr(namespace string) metric.AddOption {
	return metric.WithAttributes(attribute.String("namespace", namespace))
}
