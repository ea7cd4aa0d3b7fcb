package app

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	chainDomain "github.com/fd1az/poolsync/business/blockchain/domain"
	"github.com/fd1az/poolsync/business/statesync/domain"
	"github.com/fd1az/poolsync/internal/apperror"
	"github.com/fd1az/poolsync/internal/logger"
)

// SyncerConfig holds block-delivery settings.
type SyncerConfig struct {
	RestartLag    uint64 // Subscriptions further behind the head than this restart at the head
	MaxReorgDepth uint64 // Deeper reorgs restart every subscription
	MarkerKey     string // Shared-cache key for the current block, written when PublishMarker is set
	PublishMarker bool
}

// DefaultSyncerConfig returns sensible defaults.
func DefaultSyncerConfig() SyncerConfig {
	return SyncerConfig{
		RestartLag:    256,
		MaxReorgDepth: 64,
	}
}

type subscription struct {
	sink      Sink
	addresses map[common.Address]struct{}
	next      uint64 // first block whose logs have not been delivered
	resume    bool   // restarted without an ancestor; regenerate after the next update
}

// SyncStatus is a point-in-time view of the Syncer.
type SyncStatus struct {
	Head          uint64
	Subscriptions int
	Reorgs        int
	LastReorgTo   uint64
}

// Syncer drives every subscribed tracker from the chain head. It is the only
// caller of Update, Rollback, Invalidate and Restart, which gives each tracker
// a single writer.
type Syncer struct {
	config  SyncerConfig
	chain   ChainSource
	cache   SharedCache
	logger  logger.LoggerInterface
	metrics *Metrics
	tracer  trace.Tracer

	// procMu serializes ProcessHead and guards seen, head and each
	// subscription's cursor.
	procMu sync.Mutex
	seen   map[uint64]common.Hash
	head   *chainDomain.Block

	// mu guards only the subscription set and status, never an RPC.
	mu     sync.Mutex
	subs   map[domain.ObjectID]*subscription
	status SyncStatus
}

// resumer is implemented by sinks that can rebuild their own state after a
// restart leaves them empty.
type resumer interface {
	Resume(ctx context.Context, blockNumber uint64)
}

var _ LogSubscriber = (*Syncer)(nil)

// NewSyncer creates a Syncer. cache may be nil when no marker is published.
func NewSyncer(cfg SyncerConfig, chain ChainSource, cache SharedCache, log logger.LoggerInterface, m *Metrics) *Syncer {
	if cfg.MaxReorgDepth == 0 {
		cfg.MaxReorgDepth = DefaultSyncerConfig().MaxReorgDepth
	}
	if m == nil {
		m, _ = NewMetrics()
	}
	return &Syncer{
		config:  cfg,
		chain:   chain,
		cache:   cache,
		logger:  log,
		metrics: m,
		tracer:  otel.Tracer(tracerName),
		subs:    make(map[domain.ObjectID]*subscription),
		seen:    make(map[uint64]common.Hash),
	}
}

// SubscribeLogs implements LogSubscriber. Logs are delivered from fromBlock+1,
// since the sink's state already covers fromBlock.
func (s *Syncer) SubscribeLogs(ctx context.Context, sink Sink, addresses []common.Address, fromBlock uint64) {
	set := make(map[common.Address]struct{}, len(addresses))
	for _, a := range addresses {
		set[a] = struct{}{}
	}

	s.mu.Lock()
	s.subs[sink.ID()] = &subscription{sink: sink, addresses: set, next: fromBlock + 1}
	s.status.Subscriptions = len(s.subs)
	s.mu.Unlock()

	s.logger.Debug(ctx, "log subscription added",
		"object", sink.ID().String(), "addresses", len(addresses), "from_block", fromBlock)
}

// Unsubscribe stops delivering logs to the object.
func (s *Syncer) Unsubscribe(id domain.ObjectID) {
	s.mu.Lock()
	delete(s.subs, id)
	s.status.Subscriptions = len(s.subs)
	s.mu.Unlock()
}

// Status returns the current sync status.
func (s *Syncer) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Run processes heads until ctx is done or the head stream closes.
func (s *Syncer) Run(ctx context.Context) error {
	heads, err := s.chain.SubscribeBlocks(ctx)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "syncer started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case head, ok := <-heads:
			if !ok {
				return nil
			}
			s.ProcessHead(ctx, head)
		}
	}
}

// ProcessHead reconciles reorgs, then delivers logs up to head.
func (s *Syncer) ProcessHead(ctx context.Context, head *chainDomain.Block) {
	ctx, span := s.tracer.Start(ctx, "statesync.process_head",
		trace.WithAttributes(attribute.Int64("block", int64(head.Number))))
	defer span.End()

	s.procMu.Lock()
	defer s.procMu.Unlock()

	subs := s.snapshotSubs()

	if s.head != nil && !head.Extends(s.head) {
		s.reconcile(ctx, head, subs)
	}

	s.chain.RememberHeader(ctx, head)
	s.seen[head.Number] = head.Hash
	s.head = head
	s.pruneSeen(head.Number)

	s.mu.Lock()
	s.status.Head = head.Number
	s.mu.Unlock()

	s.deliver(ctx, head.Number, subs)

	if s.config.PublishMarker && s.cache != nil && s.config.MarkerKey != "" {
		if err := s.cache.Set(ctx, s.config.MarkerKey, strconv.FormatUint(head.Number, 10)); err != nil {
			s.logger.Error(ctx, "block marker publish failed", "block", head.Number, "error", err)
		}
	}
}

// snapshotSubs copies the subscription set so a head can be processed
// without holding mu.
func (s *Syncer) snapshotSubs() []*subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

// reconcile rolls every subscription back to the common ancestor of head and
// the blocks already processed.
func (s *Syncer) reconcile(ctx context.Context, head *chainDomain.Block, subs []*subscription) {
	ancestor, err := s.commonAncestor(ctx, head)
	if err != nil {
		// No block is known to be shared with the new fork, so no state may
		// survive: invalidate, drop everything up to head-1, then restart at head.
		s.logger.Error(ctx, "reorg ancestor search failed, restarting subscriptions",
			"block", head.Number, "error", err)
		for _, sub := range subs {
			sub.sink.Invalidate()
			sub.sink.Rollback(ctx, head.Number-1)
			sub.sink.Restart(ctx, head.Number)
			sub.next = head.Number
			sub.resume = true
			s.metrics.restarts.Add(ctx, 1, nsAttr(sub.sink.ID().Namespace))
		}
		s.seen = make(map[uint64]common.Hash)
		return
	}

	if ancestor >= s.head.Number {
		// Dropped heads, no fork.
		return
	}

	s.mu.Lock()
	s.status.Reorgs++
	s.status.LastReorgTo = ancestor
	s.mu.Unlock()
	s.metrics.reorgs.Add(ctx, 1)
	s.logger.Warn(ctx, "chain reorganization", "head", head.Number, "ancestor", ancestor, "previous_head", s.head.Number)

	for _, sub := range subs {
		sub.sink.Invalidate()
		sub.sink.Rollback(ctx, ancestor)
		if sub.next > ancestor+1 {
			sub.next = ancestor + 1
		}
	}

	s.chain.ForgetHeadersAbove(ctx, ancestor, s.head.Number)
	for n := range s.seen {
		if n > ancestor {
			delete(s.seen, n)
		}
	}
}

// commonAncestor walks head's parents until one matches a processed block,
// or falls below the blocks still remembered.
func (s *Syncer) commonAncestor(ctx context.Context, head *chainDomain.Block) (uint64, error) {
	cur := head
	for depth := uint64(0); depth <= s.config.MaxReorgDepth; depth++ {
		if cur.Number == 0 {
			return 0, nil
		}
		n := cur.Number - 1
		known, ok := s.seen[n]
		if ok && known == cur.ParentHash {
			return n, nil
		}
		if !ok && n <= s.head.Number {
			return n, nil
		}

		parent, err := s.chain.FetchHeader(ctx, n)
		if err != nil {
			return 0, err
		}
		cur = parent
	}
	return 0, apperror.New(apperror.CodeReorgTooDeep,
		apperror.WithContext(strconv.FormatUint(s.config.MaxReorgDepth, 10)))
}

func (s *Syncer) pruneSeen(head uint64) {
	if head <= s.config.MaxReorgDepth {
		return
	}
	floor := head - s.config.MaxReorgDepth
	for n := range s.seen {
		if n < floor {
			delete(s.seen, n)
		}
	}
}

// deliver fetches logs for every subscription still behind head and updates
// each sink. Every sink is updated, with or without logs, so a completed pass
// certifies it.
func (s *Syncer) deliver(ctx context.Context, head uint64, subs []*subscription) {
	if len(subs) == 0 {
		return
	}

	from := head + 1
	var addresses []common.Address
	seenAddr := make(map[common.Address]struct{})

	for _, sub := range subs {
		if sub.next > head {
			continue
		}
		if s.config.RestartLag > 0 && head-sub.next+1 > s.config.RestartLag {
			s.logger.Warn(ctx, "subscription lagging, restarting at head",
				"object", sub.sink.ID().String(), "next", sub.next, "head", head)
			sub.sink.Restart(ctx, head)
			sub.next = head + 1
			s.metrics.restarts.Add(ctx, 1, nsAttr(sub.sink.ID().Namespace))
			hint := head
			sub.sink.Update(ctx, nil, nil, &hint)
			sub.resume = false
			s.resume(ctx, sub.sink, head)
			continue
		}
		if sub.next < from {
			from = sub.next
		}
		for a := range sub.addresses {
			if _, ok := seenAddr[a]; !ok {
				seenAddr[a] = struct{}{}
				addresses = append(addresses, a)
			}
		}
	}

	if from > head {
		return
	}

	logs, err := s.chain.Logs(ctx, from, head, addresses)
	if err != nil {
		s.logger.Error(ctx, "log fetch failed, retrying on next head",
			"from", from, "to", head, "error", err)
		return
	}
	headers := s.chain.Headers(ctx, logs)

	for _, sub := range subs {
		if sub.next > head {
			continue
		}
		var own []types.Log
		for _, l := range logs {
			if l.BlockNumber < sub.next {
				continue
			}
			if _, ok := sub.addresses[l.Address]; ok {
				own = append(own, l)
			}
		}

		hint := head
		sub.sink.Update(ctx, own, headers, &hint)
		sub.next = head + 1
		if sub.resume {
			sub.resume = false
			s.resume(ctx, sub.sink, head)
		}
	}
}

func (s *Syncer) resume(ctx context.Context, sink Sink, head uint64) {
	if r, ok := sink.(resumer); ok {
		r.Resume(ctx, head)
	}
}

// ListenNewObjects calls fn for every new-object request published on channel
// until ctx is done. Malformed messages are logged and skipped.
func (s *Syncer) ListenNewObjects(ctx context.Context, channel string, fn func(context.Context, domain.NewObjectRequest)) error {
	if s.cache == nil {
		return apperror.New(apperror.CodeConfigurationError, apperror.WithContext("no shared cache"))
	}

	msgs, err := s.cache.Subscribe(ctx, channel)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			var req domain.NewObjectRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				s.logger.Warn(ctx, "malformed new object request", "error", err)
				continue
			}
			fn(ctx, req)
		}
	}()
	return nil
}
