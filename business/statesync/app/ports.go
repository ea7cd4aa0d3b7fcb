// Package app contains the state synchronization engine: the tracked-object
// store, log replay, reorg reconciliation and bootstrap strategies.
package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	chainDomain "github.com/fd1az/poolsync/business/blockchain/domain"
	"github.com/fd1az/poolsync/business/statesync/domain"
)

// State is the constraint on tracked state values. Clone must return a deep
// copy; the store clones on every write and read so held snapshots stay frozen.
type State[S any] interface {
	Clone() S
}

// Collaborator supplies the object-specific parts of a tracked object.
type Collaborator[S State[S]] interface {
	// Addresses returns the contracts whose logs drive the state. It is read
	// after bootstrap, so it may depend on fields bound by an install callback.
	Addresses() []common.Address

	// ProcessLog applies one log to state. ok is false when the log does not
	// change state. Errors are logged and the log is skipped.
	ProcessLog(ctx context.Context, state S, log types.Log, block *chainDomain.Block) (next S, ok bool, err error)

	// GenerateState builds the state as of the end of blockNumber.
	GenerateState(ctx context.Context, blockNumber uint64) (S, error)

	// IsTracking declares continuous, gapless log delivery. When true reads skip
	// the freshness check; the engine does not verify the claim.
	IsTracking() bool
}

// SharedCache is the access contract to the external key/value + pub/sub store.
// Calls may block; the engine detaches HashSet and Publish itself.
type SharedCache interface {
	HashGet(ctx context.Context, bucket, key string) ([]byte, bool, error)
	HashSet(ctx context.Context, bucket, key string, value []byte) error
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)

	// ScheduleDeferredGet fires fn at most once, out of band, when a value for
	// (bucket, key) becomes available. It never blocks the caller.
	ScheduleDeferredGet(ctx context.Context, bucket, key string, fn func(value []byte))
}

// Sink is the surface the log-delivery loop drives for one tracked object.
type Sink interface {
	ID() domain.ObjectID
	Update(ctx context.Context, logs []types.Log, headers map[uint64]*chainDomain.Block, regenHint *uint64)
	Invalidate()
	Rollback(ctx context.Context, blockNumber uint64)
	Restart(ctx context.Context, blockNumber uint64)
	BlockNumber() (uint64, bool)
}

// LogSubscriber routes future logs for addresses to a sink, starting at fromBlock.
type LogSubscriber interface {
	SubscribeLogs(ctx context.Context, sink Sink, addresses []common.Address, fromBlock uint64)
}

// Codec serializes snapshots for the shared cache. It must round-trip exactly,
// large integers included.
type Codec[S any] interface {
	Encode(snapshot domain.Snapshot[S]) ([]byte, error)
	Decode(data []byte) (domain.Snapshot[S], error)
}

// ChainSource is the chain access the Syncer needs.
type ChainSource interface {
	SubscribeBlocks(ctx context.Context) (<-chan *chainDomain.Block, error)
	FetchHeader(ctx context.Context, number uint64) (*chainDomain.Block, error)
	RememberHeader(ctx context.Context, block *chainDomain.Block)
	ForgetHeadersAbove(ctx context.Context, number, upTo uint64)
	Headers(ctx context.Context, logs []types.Log) map[uint64]*chainDomain.Block
	Logs(ctx context.Context, from, to uint64, addresses []common.Address) ([]types.Log, error)
}
