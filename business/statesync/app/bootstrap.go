package app

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/poolsync/business/statesync/domain"
	"github.com/fd1az/poolsync/internal/apperror"
)

type initOptions[S State[S]] struct {
	state       *S
	onInstalled func(ctx context.Context, state S) error
}

// InitOption configures Initialize.
type InitOption[S State[S]] func(*initOptions[S])

// WithInitialState installs state as-is instead of generating or adopting one.
func WithInitialState[S State[S]](state S) InitOption[S] {
	return func(o *initOptions[S]) {
		o.state = &state
	}
}

// WithOnInstalled runs fn once with the installed state, before the log
// subscription starts. It is skipped when no state was installed.
func WithOnInstalled[S State[S]](fn func(ctx context.Context, state S) error) InitOption[S] {
	return func(o *initOptions[S]) {
		o.onInstalled = fn
	}
}

// Initialize installs the first state at blockNumber and subscribes to future
// logs. Only a failed direct generation is returned to the caller.
func (t *Tracker[S]) Initialize(ctx context.Context, blockNumber uint64, opts ...InitOption[S]) error {
	ctx, span := t.tracer.Start(ctx, "statesync.initialize",
		trace.WithAttributes(
			attribute.String("object", t.id.String()),
			attribute.String("strategy", t.strategy.Name()),
			attribute.Int64("block", int64(blockNumber)),
		),
	)
	defer span.End()

	var o initOptions[S]
	for _, opt := range opts {
		opt(&o)
	}

	from := blockNumber
	path := domain.PathSupplied

	if o.state != nil {
		t.SetState(ctx, *o.state, blockNumber)
	} else {
		var err error
		from, path, err = t.strategy.bootstrap(ctx, t, blockNumber)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bootstrap failed")
			return err
		}
	}

	t.metrics.bootstraps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", t.id.Namespace),
		attribute.String("path", string(path)),
	))
	span.SetAttributes(attribute.String("path", string(path)), attribute.Int64("from_block", int64(from)))

	if o.onInstalled != nil {
		if state, _, ok := t.StaleState(); ok {
			if err := o.onInstalled(ctx, state); err != nil {
				t.metrics.softError(ctx, t.id.Namespace, "on_installed")
				t.logger.Error(ctx, "install callback failed", "object", t.id.String(), "error", err)
			}
		}
	}

	if t.env.Logs != nil {
		t.env.Logs.SubscribeLogs(ctx, t, t.collab.Addresses(), from)
	}

	t.logger.Info(ctx, "tracked object initialized",
		"object", t.id.String(),
		"strategy", t.strategy.Name(),
		"path", string(path),
		"block", blockNumber,
		"from_block", from)

	return nil
}

// generate builds and installs state at blockNumber from the chain.
func (t *Tracker[S]) generate(ctx context.Context, blockNumber uint64) error {
	state, err := t.collab.GenerateState(ctx, blockNumber)
	if err != nil {
		return apperror.New(apperror.CodeStateGenerationFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s at block %d", t.id, blockNumber)),
		)
	}
	t.SetState(ctx, state, blockNumber)
	return nil
}

// adoptShared tries to install the primary's snapshot. It returns the block from
// which logs should be subscribed and false when the caller must generate instead.
func (t *Tracker[S]) adoptShared(ctx context.Context, blockNumber uint64) (uint64, bool) {
	if t.env.Cache == nil {
		return 0, false
	}

	bucket, key := t.id.CacheBucket(), t.id.CacheKey()

	data, found, err := t.env.Cache.HashGet(ctx, bucket, key)
	if err != nil {
		t.metrics.softError(ctx, t.id.Namespace, "cache_read")
		t.logger.Error(ctx, "shared snapshot read failed",
			"object", t.id.String(), "bucket", bucket, "error", err)
		return 0, false
	}

	if !found {
		t.logger.Debug(ctx, "shared snapshot missing, requesting primary",
			"object", t.id.String(), "bucket", bucket)
		t.publishNewObject(ctx, blockNumber)
		return 0, false
	}

	snapshot, err := t.codec.Decode(data)
	if err != nil {
		t.metrics.softError(ctx, t.id.Namespace, "snapshot_decode")
		t.logger.Error(ctx, "shared snapshot decode failed", "object", t.id.String(), "error", err)
		return 0, false
	}

	// Block 0 is never installable, so such a snapshot counts as empty.
	if !snapshot.HasState() || snapshot.BlockNumber == 0 {
		t.logger.Warn(ctx, "shared snapshot is empty, generating locally",
			"object", t.id.String(), "block", snapshot.BlockNumber)
		return 0, false
	}

	t.SetState(ctx, *snapshot.State, snapshot.BlockNumber)

	return t.primaryBlock(ctx, snapshot.BlockNumber), true
}

// primaryBlock reads the primary's block marker, falling back to fallback.
func (t *Tracker[S]) primaryBlock(ctx context.Context, fallback uint64) uint64 {
	if t.env.MarkerKey == "" {
		return fallback
	}

	raw, found, err := t.env.Cache.Get(ctx, t.env.MarkerKey)
	if err != nil || !found {
		t.logger.Error(ctx, "primary block marker unavailable, subscribing from snapshot block",
			"object", t.id.String(), "marker", t.env.MarkerKey, "block", fallback, "error", err)
		return fallback
	}

	var bn uint64
	if _, err := fmt.Sscan(raw, &bn); err != nil || bn == 0 {
		t.logger.Error(ctx, "primary block marker malformed, subscribing from snapshot block",
			"object", t.id.String(), "marker", raw, "block", fallback)
		return fallback
	}
	return bn
}

// publishNewObject asks the primary to start tracking this object. Best effort.
func (t *Tracker[S]) publishNewObject(ctx context.Context, blockNumber uint64) {
	if t.env.NewObjectChannel == "" {
		return
	}

	msg, err := json.Marshal(domain.NewObjectRequest{
		Namespace:   t.id.Namespace,
		Name:        t.id.Name,
		Bucket:      t.id.Bucket,
		Addresses:   t.collab.Addresses(),
		BlockNumber: blockNumber,
	})
	if err != nil {
		t.logger.Error(ctx, "new object request encode failed", "object", t.id.String(), "error", err)
		return
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := t.env.Cache.Publish(ctx, t.env.NewObjectChannel, msg); err != nil {
			t.metrics.softError(ctx, t.id.Namespace, "cache_publish")
			t.logger.Error(ctx, "new object request publish failed", "object", t.id.String(), "error", err)
		}
	}()
}
