package asset

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrNilAsset       = errors.New("asset: nil asset")
	ErrUnknownAsset   = errors.New("asset: unknown asset")
	ErrNegativeAmount = errors.New("asset: negative amount")
	ErrPrecision      = errors.New("asset: amount finer than token precision")
)

// Amount is a non-negative token quantity in base units, bound to its token.
// The zero value is an unbound zero.
type Amount struct {
	units *big.Int
	token *Asset
}

// NewAmount binds base units to a token. units is copied; nil means zero.
func NewAmount(token *Asset, units *big.Int) (Amount, error) {
	switch {
	case token == nil:
		return Amount{}, ErrNilAsset
	case units == nil:
		return Amount{units: new(big.Int), token: token}, nil
	case units.Sign() < 0:
		return Amount{}, ErrNegativeAmount
	}
	return Amount{units: new(big.Int).Set(units), token: token}, nil
}

// FromDecimal converts whole-token units, e.g. 1.5 WETH, into base units.
func FromDecimal(token *Asset, whole decimal.Decimal) (Amount, error) {
	if token == nil {
		return Amount{}, ErrNilAsset
	}
	if whole.IsNegative() {
		return Amount{}, ErrNegativeAmount
	}
	units := whole.Shift(int32(token.Decimals()))
	if !units.IsInteger() {
		return Amount{}, fmt.Errorf("%w: %s has %d decimals", ErrPrecision, token.Symbol(), token.Decimals())
	}
	return NewAmount(token, units.BigInt())
}

// Raw returns a copy of the base units.
func (a Amount) Raw() *big.Int {
	if a.units == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.units)
}

func (a Amount) Asset() *Asset { return a.token }

func (a Amount) IsZero() bool { return a.units == nil || a.units.Sign() == 0 }

func (a Amount) ToDecimal() decimal.Decimal {
	if a.units == nil || a.token == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(a.units, -int32(a.token.Decimals()))
}

// Per is a over b in whole-token units, zero when b is zero.
func (a Amount) Per(b Amount) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.ToDecimal().Div(b.ToDecimal())
}

func (a Amount) String() string {
	return a.format(a.ToDecimal().String())
}

// StringFixed rounds to places, e.g. "2000000.0000 USDC".
func (a Amount) StringFixed(places int32) string {
	return a.format(a.ToDecimal().StringFixed(places))
}

func (a Amount) format(value string) string {
	if a.token == nil {
		return "0 ???"
	}
	return value + " " + a.token.Symbol()
}
