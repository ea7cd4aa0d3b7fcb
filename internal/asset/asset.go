// Package asset holds ERC20 token metadata and token-denominated amounts.
package asset

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// maxDecimals rejects obviously broken token metadata.
const maxDecimals = 36

// Asset is an ERC20 token. Identity is the contract address; the symbol is
// display metadata only.
type Asset struct {
	address  common.Address
	symbol   string
	name     string
	decimals uint8
}

// NewAsset creates token metadata.
func NewAsset(address common.Address, symbol string, decimals uint8) (*Asset, error) {
	if decimals > maxDecimals {
		return nil, fmt.Errorf("asset: suspicious decimals %d for %s", decimals, address.Hex())
	}
	if symbol == "" {
		symbol = shortAddress(address)
	}
	return &Asset{address: address, symbol: symbol, decimals: decimals}, nil
}

// MustNewAsset is NewAsset for static tables.
func MustNewAsset(address common.Address, symbol, name string, decimals uint8) *Asset {
	a, err := NewAsset(address, symbol, decimals)
	if err != nil {
		panic(err)
	}
	a.name = name
	return a
}

func (a *Asset) Address() common.Address { return a.address }

func (a *Asset) Symbol() string { return a.symbol }

func (a *Asset) Decimals() uint8 { return a.decimals }

// Name returns the human-readable name, or the symbol when unknown.
func (a *Asset) Name() string {
	if a.name == "" {
		return a.symbol
	}
	return a.name
}

func (a *Asset) String() string {
	return a.symbol
}

// Equals compares two assets by address.
func (a *Asset) Equals(other *Asset) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.address == other.address
}

func shortAddress(addr common.Address) string {
	return addr.Hex()[:8]
}
