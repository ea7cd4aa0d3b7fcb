package uniswapv2

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	chainDomain "github.com/fd1az/poolsync/business/blockchain/domain"
	"github.com/fd1az/poolsync/business/pool/domain"
	"github.com/fd1az/poolsync/internal/apperror"
)

var (
	pairAddr = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	usdc     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

// fakeCaller answers calls by contract and method selector.
type fakeCaller struct {
	mu        sync.Mutex
	responses map[string][]byte
	calls     map[string]int
	blocks    []uint64
	err       error
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{responses: make(map[string][]byte), calls: make(map[string]int)}
}

func (f *fakeCaller) set(t *testing.T, contract common.Address, parsed abi.ABI, method string, values ...interface{}) {
	t.Helper()
	m := parsed.Methods[method]
	out, err := m.Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	f.responses[callKey(contract, m.ID)] = out
}

func (f *fakeCaller) CallContract(ctx context.Context, to common.Address, data []byte, blockNumber uint64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	key := callKey(to, data[:4])
	f.calls[key]++
	f.blocks = append(f.blocks, blockNumber)
	out, ok := f.responses[key]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return out, nil
}

func callKey(to common.Address, selector []byte) string {
	return fmt.Sprintf("%s:%x", to.Hex(), selector)
}

func pairCaller(t *testing.T, r0, r1 *big.Int) *fakeCaller {
	f := newFakeCaller()
	f.set(t, pairAddr, pairABI, "token0", usdc)
	f.set(t, pairAddr, pairABI, "token1", weth)
	f.set(t, pairAddr, pairABI, "getReserves", r0, r1, uint32(1700000000))
	return f
}

func syncLog(t *testing.T, r0, r1 int64) types.Log {
	t.Helper()
	data, err := pairABI.Events["Sync"].Inputs.NonIndexed().Pack(big.NewInt(r0), big.NewInt(r1))
	if err != nil {
		t.Fatalf("pack sync: %v", err)
	}
	return types.Log{Address: pairAddr, Topics: []common.Hash{domain.TopicSync}, Data: data, BlockNumber: 101}
}

func TestPair_GenerateState(t *testing.T) {
	caller := pairCaller(t, big.NewInt(5_000_000), big.NewInt(2_500))
	p := NewPair(pairAddr, caller)

	state, err := p.GenerateState(context.Background(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Token0 != usdc || state.Token1 != weth {
		t.Errorf("tokens = %s/%s", state.Token0.Hex(), state.Token1.Hex())
	}
	if state.Reserve0.Int64() != 5_000_000 || state.Reserve1.Int64() != 2_500 {
		t.Errorf("reserves = %s/%s", state.Reserve0, state.Reserve1)
	}
	if state.BlockTimestampLast != 1700000000 {
		t.Errorf("timestamp = %d", state.BlockTimestampLast)
	}
	for _, b := range caller.blocks {
		if b != 100 {
			t.Errorf("call at block %d, want 100", b)
		}
	}

	if _, err := p.GenerateState(context.Background(), 101); err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if n := caller.calls[callKey(pairAddr, pairABI.Methods["token0"].ID)]; n != 1 {
		t.Errorf("token0 calls = %d, want 1", n)
	}
}

func TestPair_GenerateStateCallFailure(t *testing.T) {
	caller := newFakeCaller()
	caller.err = errors.New("node down")
	p := NewPair(pairAddr, caller)

	if _, err := p.GenerateState(context.Background(), 100); err == nil {
		t.Fatal("expected error")
	}
}

func TestPair_ProcessLog(t *testing.T) {
	p := NewPair(pairAddr, newFakeCaller())
	base := domain.PairState{Token0: usdc, Token1: weth, Reserve0: big.NewInt(1), Reserve1: big.NewInt(1)}
	block := &chainDomain.Block{Number: 101, Timestamp: time.Unix(1700000100, 0)}

	tests := []struct {
		name      string
		log       types.Log
		wantOK    bool
		wantErr   bool
		reserve0  int64
		timestamp uint32
	}{
		{"sync", syncLog(t, 7, 9), true, false, 7, 1700000100},
		{"swap ignored", types.Log{Address: pairAddr, Topics: []common.Hash{domain.TopicSwap}}, false, false, 1, 0},
		{"other contract", func() types.Log { l := syncLog(t, 7, 9); l.Address = weth; return l }(), false, false, 1, 0},
		{"truncated sync", types.Log{Address: pairAddr, Topics: []common.Hash{domain.TopicSync}, Data: []byte{1}}, false, true, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok, err := p.ProcessLog(context.Background(), base, tt.log, block)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && apperror.GetCode(err) != apperror.CodeLogDecodeFailed {
				t.Errorf("code = %s", apperror.GetCode(err))
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if next.Reserve0.Int64() != tt.reserve0 || next.BlockTimestampLast != tt.timestamp {
				t.Errorf("next = %+v", next)
			}
		})
	}

	if base.Reserve0.Int64() != 1 {
		t.Errorf("base state mutated")
	}
}

func TestTokenLookup(t *testing.T) {
	mkr := common.HexToAddress("0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2")
	caller := newFakeCaller()
	caller.set(t, usdc, erc20ABI, "decimals", uint8(6))
	caller.set(t, usdc, erc20ABI, "symbol", "USDC")
	var sym [32]byte
	copy(sym[:], "MKR")
	caller.set(t, mkr, erc20ABI, "decimals", uint8(18))
	caller.set(t, mkr, erc20Bytes32ABI, "symbol", sym)

	lookup := TokenLookup(caller)

	tests := []struct {
		addr     common.Address
		symbol   string
		decimals uint8
	}{
		{usdc, "USDC", 6},
		{mkr, "MKR", 18},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			a, err := lookup(context.Background(), tt.addr)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Symbol() != tt.symbol || a.Decimals() != tt.decimals {
				t.Errorf("asset = %s/%d", a.Symbol(), a.Decimals())
			}
		})
	}

	if _, err := lookup(context.Background(), weth); err == nil {
		t.Error("expected error for a token without decimals")
	}
}
