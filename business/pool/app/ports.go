// Package app contains the pool registry, quoting and their ports.
package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	chainDomain "github.com/fd1az/poolsync/business/blockchain/domain"
	"github.com/fd1az/poolsync/business/pool/domain"
	statesyncApp "github.com/fd1az/poolsync/business/statesync/app"
	statesyncDomain "github.com/fd1az/poolsync/business/statesync/domain"
)

// ContractCaller executes read-only contract calls. A zero blockNumber means latest.
type ContractCaller interface {
	CallContract(ctx context.Context, to common.Address, data []byte, blockNumber uint64) ([]byte, error)
}

// GasPricer provides the current gas price.
type GasPricer interface {
	GasPrice(ctx context.Context) (*chainDomain.GasPrice, error)
}

// HeadSource provides the current chain head.
type HeadSource interface {
	LatestBlock(ctx context.Context) (*chainDomain.Block, error)
}

// PairSource is the collaborator that knows how to read and update one pair.
type PairSource = statesyncApp.Collaborator[domain.PairState]

// PairFactory builds the collaborator for a pair address.
type PairFactory func(address common.Address) (PairSource, error)

// Unsubscriber stops log delivery for an object.
type Unsubscriber interface {
	Unsubscribe(id statesyncDomain.ObjectID)
}
