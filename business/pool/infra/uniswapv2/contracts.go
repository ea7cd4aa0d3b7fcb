package uniswapv2

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// PairABI is the subset of the Uniswap V2 pair ABI used for reserve tracking.
const PairABI = `[
	{
		"constant": true,
		"inputs": [],
		"name": "getReserves",
		"outputs": [
			{"internalType": "uint112", "name": "_reserve0", "type": "uint112"},
			{"internalType": "uint112", "name": "_reserve1", "type": "uint112"},
			{"internalType": "uint32", "name": "_blockTimestampLast", "type": "uint32"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "token0",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "token1",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "internalType": "uint112", "name": "reserve0", "type": "uint112"},
			{"indexed": false, "internalType": "uint112", "name": "reserve1", "type": "uint112"}
		],
		"name": "Sync",
		"type": "event"
	}
]`

// ERC20ABI covers the metadata calls used to resolve tokens.
const ERC20ABI = `[
	{
		"constant": true,
		"inputs": [],
		"name": "symbol",
		"outputs": [{"name": "", "type": "string"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "decimals",
		"outputs": [{"name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// erc20Bytes32Def decodes tokens like MKR whose symbol is bytes32.
const erc20Bytes32Def = `[
	{
		"constant": true,
		"inputs": [],
		"name": "symbol",
		"outputs": [{"name": "", "type": "bytes32"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var (
	pairABI         = mustParseABI(PairABI)
	erc20ABI        = mustParseABI(ERC20ABI)
	erc20Bytes32ABI = mustParseABI(erc20Bytes32Def)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("uniswapv2: invalid ABI: " + err.Error())
	}
	return parsed
}
