// Package domain contains the core domain types for the pool context.
package domain

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// BpsDenominator is the basis-point scale used for swap fees.
const BpsDenominator = 10_000

var (
	ErrTokenNotInPair        = errors.New("pool: token not in pair")
	ErrInsufficientLiquidity = errors.New("pool: insufficient liquidity")
	ErrInvalidAmount         = errors.New("pool: amount must be positive")
)

// PairState is the reserve state of a constant-product pair.
type PairState struct {
	Token0             common.Address `json:"token0"`
	Token1             common.Address `json:"token1"`
	Reserve0           *big.Int       `json:"reserve0"`
	Reserve1           *big.Int       `json:"reserve1"`
	BlockTimestampLast uint32         `json:"blockTimestampLast"`
}

// Clone returns a deep copy.
func (p PairState) Clone() PairState {
	out := p
	out.Reserve0 = cloneInt(p.Reserve0)
	out.Reserve1 = cloneInt(p.Reserve1)
	return out
}

// WithReserves returns a copy holding the given reserves.
func (p PairState) WithReserves(reserve0, reserve1 *big.Int) PairState {
	out := p.Clone()
	out.Reserve0 = cloneInt(reserve0)
	out.Reserve1 = cloneInt(reserve1)
	return out
}

// Has reports whether token is one side of the pair.
func (p PairState) Has(token common.Address) bool {
	return token == p.Token0 || token == p.Token1
}

// Other returns the opposite side of token.
func (p PairState) Other(token common.Address) (common.Address, error) {
	switch token {
	case p.Token0:
		return p.Token1, nil
	case p.Token1:
		return p.Token0, nil
	}
	return common.Address{}, ErrTokenNotInPair
}

// Reserves returns (reserveIn, reserveOut) for a swap selling tokenIn.
func (p PairState) Reserves(tokenIn common.Address) (*big.Int, *big.Int, error) {
	switch tokenIn {
	case p.Token0:
		return cloneInt(p.Reserve0), cloneInt(p.Reserve1), nil
	case p.Token1:
		return cloneInt(p.Reserve1), cloneInt(p.Reserve0), nil
	}
	return nil, nil, ErrTokenNotInPair
}

// AmountOut is the constant-product output for selling amountIn of tokenIn,
// after a fee of feeBps basis points. Rounds down like the pair contract.
func (p PairState) AmountOut(tokenIn common.Address, amountIn *big.Int, feeBps int64) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	reserveIn, reserveOut, err := p.Reserves(tokenIn)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}

	withFee := new(big.Int).Mul(amountIn, big.NewInt(BpsDenominator-feeBps))
	numerator := new(big.Int).Mul(withFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(BpsDenominator))
	denominator.Add(denominator, withFee)

	out := numerator.Div(numerator, denominator)
	if out.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	return out, nil
}

// SpotPrice is the marginal price of tokenIn in units of the other token,
// scaled by each side's decimals.
func (p PairState) SpotPrice(tokenIn common.Address, decimalsIn, decimalsOut uint8) (decimal.Decimal, error) {
	reserveIn, reserveOut, err := p.Reserves(tokenIn)
	if err != nil {
		return decimal.Zero, err
	}
	if reserveIn.Sign() <= 0 {
		return decimal.Zero, ErrInsufficientLiquidity
	}
	in := decimal.NewFromBigInt(reserveIn, -int32(decimalsIn))
	out := decimal.NewFromBigInt(reserveOut, -int32(decimalsOut))
	return out.Div(in), nil
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
