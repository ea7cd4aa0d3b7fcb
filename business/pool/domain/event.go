package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EventKind identifies a pair event by its first topic.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventSync
	EventSwap
	EventMint
	EventBurn
)

var (
	TopicSync = crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))
	TopicSwap = crypto.Keccak256Hash([]byte("Swap(address,uint256,uint256,uint256,uint256,address)"))
	TopicMint = crypto.Keccak256Hash([]byte("Mint(address,uint256,uint256)"))
	TopicBurn = crypto.Keccak256Hash([]byte("Burn(address,uint256,uint256,address)"))
)

// EventKindOf classifies a log by topic0.
func EventKindOf(topics []common.Hash) EventKind {
	if len(topics) == 0 {
		return EventUnknown
	}
	switch topics[0] {
	case TopicSync:
		return EventSync
	case TopicSwap:
		return EventSwap
	case TopicMint:
		return EventMint
	case TopicBurn:
		return EventBurn
	}
	return EventUnknown
}

func (k EventKind) String() string {
	switch k {
	case EventSync:
		return "sync"
	case EventSwap:
		return "swap"
	case EventMint:
		return "mint"
	case EventBurn:
		return "burn"
	}
	return "unknown"
}
