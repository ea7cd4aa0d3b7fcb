package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var weiPerGwei = decimal.New(1, 9)

// GasPrice is a gas price in wei.
type GasPrice struct {
	Wei *big.Int
}

// NewGasPrice creates a GasPrice from wei.
func NewGasPrice(wei *big.Int) *GasPrice {
	return &GasPrice{Wei: new(big.Int).Set(wei)}
}

// Gwei returns the price in gwei.
func (g *GasPrice) Gwei() decimal.Decimal {
	return decimal.NewFromBigInt(g.Wei, 0).Div(weiPerGwei)
}

// GasEstimate is the cost of executing gasLimit units at a price.
type GasEstimate struct {
	GasLimit uint64
	GasPrice *GasPrice
	TotalWei *big.Int
}

// NewGasEstimate computes the total cost in wei.
func NewGasEstimate(gasLimit uint64, price *GasPrice) *GasEstimate {
	total := new(big.Int).Mul(price.Wei, new(big.Int).SetUint64(gasLimit))
	return &GasEstimate{GasLimit: gasLimit, GasPrice: price, TotalWei: total}
}

// TotalEth returns the total cost in ether.
func (e *GasEstimate) TotalEth() decimal.Decimal {
	return decimal.NewFromBigInt(e.TotalWei, -18)
}
