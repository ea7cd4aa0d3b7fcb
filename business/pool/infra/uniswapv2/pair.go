// Package uniswapv2 reads and follows Uniswap V2 style constant-product pairs.
package uniswapv2

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	chainDomain "github.com/fd1az/poolsync/business/blockchain/domain"
	"github.com/fd1az/poolsync/business/pool/app"
	"github.com/fd1az/poolsync/business/pool/domain"
	"github.com/fd1az/poolsync/internal/apperror"
)

const tracerName = "uniswapv2"

var _ app.PairSource = (*Pair)(nil)

// Pair follows one pair contract. Reserves come from Sync events, which the
// pair emits after every swap, mint and burn.
type Pair struct {
	address common.Address
	caller  app.ContractCaller
	tracer  trace.Tracer

	mu     sync.Mutex
	token0 common.Address
	token1 common.Address
	bound  bool
}

// NewPair creates a collaborator for the pair at address.
func NewPair(address common.Address, caller app.ContractCaller) *Pair {
	return &Pair{
		address: address,
		caller:  caller,
		tracer:  otel.Tracer(tracerName),
	}
}

// Factory returns an app.PairFactory backed by caller.
func Factory(caller app.ContractCaller) app.PairFactory {
	return func(address common.Address) (app.PairSource, error) {
		return NewPair(address, caller), nil
	}
}

func (p *Pair) Addresses() []common.Address {
	return []common.Address{p.address}
}

// IsTracking is false: reads check freshness against the requested block.
func (p *Pair) IsTracking() bool {
	return false
}

// ProcessLog applies Sync events. Swap, Mint and Burn are always followed by a
// Sync in the same transaction, so they leave state unchanged.
func (p *Pair) ProcessLog(ctx context.Context, state domain.PairState, log types.Log, block *chainDomain.Block) (domain.PairState, bool, error) {
	if log.Address != p.address {
		return state, false, nil
	}
	if domain.EventKindOf(log.Topics) != domain.EventSync {
		return state, false, nil
	}

	values, err := pairABI.Unpack("Sync", log.Data)
	if err != nil || len(values) != 2 {
		return state, false, apperror.New(apperror.CodeLogDecodeFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("sync log %s#%d", log.TxHash.Hex(), log.Index)))
	}
	reserve0, ok0 := values[0].(*big.Int)
	reserve1, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return state, false, apperror.New(apperror.CodeLogDecodeFailed,
			apperror.WithContext("unexpected sync field types"))
	}

	next := state.WithReserves(reserve0, reserve1)
	if block != nil && !block.Timestamp.IsZero() {
		next.BlockTimestampLast = uint32(block.Timestamp.Unix())
	}
	return next, true, nil
}

// GenerateState reads tokens and reserves as of blockNumber.
func (p *Pair) GenerateState(ctx context.Context, blockNumber uint64) (domain.PairState, error) {
	ctx, span := p.tracer.Start(ctx, "uniswapv2.generate_state",
		trace.WithAttributes(
			attribute.String("pair", p.address.Hex()),
			attribute.Int64("block", int64(blockNumber)),
		),
	)
	defer span.End()

	token0, token1, err := p.tokens(ctx, blockNumber)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.PairState{}, err
	}

	out, err := p.call(ctx, "getReserves", blockNumber)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.PairState{}, err
	}
	if len(out) != 3 {
		return domain.PairState{}, fmt.Errorf("getReserves: unexpected output length %d", len(out))
	}

	state := domain.PairState{
		Token0:             token0,
		Token1:             token1,
		Reserve0:           out[0].(*big.Int),
		Reserve1:           out[1].(*big.Int),
		BlockTimestampLast: out[2].(uint32),
	}
	span.SetAttributes(
		attribute.String("reserve0", state.Reserve0.String()),
		attribute.String("reserve1", state.Reserve1.String()),
	)
	return state, nil
}

// tokens reads token0 and token1 once; they never change for a pair.
func (p *Pair) tokens(ctx context.Context, blockNumber uint64) (common.Address, common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bound {
		return p.token0, p.token1, nil
	}

	out0, err := p.call(ctx, "token0", blockNumber)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	out1, err := p.call(ctx, "token1", blockNumber)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}

	p.token0 = out0[0].(common.Address)
	p.token1 = out1[0].(common.Address)
	p.bound = true
	return p.token0, p.token1, nil
}

func (p *Pair) call(ctx context.Context, method string, blockNumber uint64) ([]interface{}, error) {
	data, err := pairABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}

	result, err := p.caller.CallContract(ctx, p.address, data, blockNumber)
	if err != nil {
		return nil, err
	}

	out, err := pairABI.Unpack(method, result)
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("decode %s of %s", method, p.address.Hex())))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty output", method)
	}
	return out, nil
}
