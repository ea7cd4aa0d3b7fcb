package uniswapv2

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/poolsync/business/pool/app"
	"github.com/fd1az/poolsync/internal/asset"
)

// TokenLookup resolves ERC20 metadata on chain at the latest block.
func TokenLookup(caller app.ContractCaller) asset.Lookup {
	return func(ctx context.Context, address common.Address) (*asset.Asset, error) {
		decimals, err := tokenDecimals(ctx, caller, address)
		if err != nil {
			return nil, err
		}
		// Symbol is display only; tokens without one fall back to the address.
		symbol, _ := tokenSymbol(ctx, caller, address)
		return asset.NewAsset(address, symbol, decimals)
	}
}

func tokenDecimals(ctx context.Context, caller app.ContractCaller, address common.Address) (uint8, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	result, err := caller.CallContract(ctx, address, data, 0)
	if err != nil {
		return 0, err
	}
	out, err := erc20ABI.Unpack("decimals", result)
	if err != nil || len(out) != 1 {
		return 0, fmt.Errorf("decode decimals of %s: %w", address.Hex(), err)
	}
	return out[0].(uint8), nil
}

func tokenSymbol(ctx context.Context, caller app.ContractCaller, address common.Address) (string, error) {
	data, err := erc20ABI.Pack("symbol")
	if err != nil {
		return "", err
	}
	result, err := caller.CallContract(ctx, address, data, 0)
	if err != nil {
		return "", err
	}

	if out, err := erc20ABI.Unpack("symbol", result); err == nil && len(out) == 1 {
		return out[0].(string), nil
	}
	out, err := erc20Bytes32ABI.Unpack("symbol", result)
	if err != nil || len(out) != 1 {
		return "", fmt.Errorf("decode symbol of %s: %w", address.Hex(), err)
	}
	raw := out[0].([32]byte)
	return string(bytes.TrimRight(raw[:], "\x00")), nil
}
