// Package app contains application services and port definitions for the blockchain context.
package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/poolsync/business/blockchain/domain"
)

// BlockSubscriber delivers new chain heads.
type BlockSubscriber interface {
	// Subscribe starts listening for new blocks and returns a channel of blocks.
	Subscribe(ctx context.Context) (<-chan *domain.Block, error)

	// State returns the current connection state.
	State() domain.ConnectionState
}

// ChainReader performs historical reads against a node.
type ChainReader interface {
	// HeaderByNumber returns the header at number, or the latest when number is nil.
	HeaderByNumber(ctx context.Context, number *uint64) (*domain.Block, error)

	// FilterLogs returns logs emitted by addresses in [from, to], ordered by
	// block number and log index.
	FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address) ([]types.Log, error)

	// CallContract executes a read-only call as of blockNumber; zero means latest.
	CallContract(ctx context.Context, to common.Address, data []byte, blockNumber uint64) ([]byte, error)

	// GasPrice returns the suggested gas price.
	GasPrice(ctx context.Context) (*domain.GasPrice, error)
}
