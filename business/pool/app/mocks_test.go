package app

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	chainDomain "github.com/fd1az/poolsync/business/blockchain/domain"
	"github.com/fd1az/poolsync/business/pool/domain"
	statesyncApp "github.com/fd1az/poolsync/business/statesync/app"
	statesyncDomain "github.com/fd1az/poolsync/business/statesync/domain"
	"github.com/fd1az/poolsync/internal/asset"
	"github.com/fd1az/poolsync/internal/logger"
)

// mockLogger implements logger.LoggerInterface for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

var (
	pairA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	pairB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

// mockPair serves fixed reserves between USDC and WETH.
type mockPair struct {
	address  common.Address
	reserve0 *big.Int
	reserve1 *big.Int
	genErr   error
}

func (p *mockPair) Addresses() []common.Address { return []common.Address{p.address} }

func (p *mockPair) IsTracking() bool { return false }

func (p *mockPair) ProcessLog(ctx context.Context, state domain.PairState, log types.Log, block *chainDomain.Block) (domain.PairState, bool, error) {
	return state, false, nil
}

func (p *mockPair) GenerateState(ctx context.Context, blockNumber uint64) (domain.PairState, error) {
	if p.genErr != nil {
		return domain.PairState{}, p.genErr
	}
	return domain.PairState{
		Token0:   asset.AddrUSDC,
		Token1:   asset.AddrWETH,
		Reserve0: new(big.Int).Set(p.reserve0),
		Reserve1: new(big.Int).Set(p.reserve1),
	}, nil
}

func mustInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad int " + s)
	}
	return v
}

// usdcWethPair holds 2,000,000 USDC against 1,000 WETH.
func usdcWethPair(address common.Address) *mockPair {
	return &mockPair{
		address:  address,
		reserve0: mustInt("2000000000000"),
		reserve1: mustInt("1000000000000000000000"),
	}
}

// mockLogs records subscriptions.
type mockLogs struct {
	mu           sync.Mutex
	subscribed   []statesyncDomain.ObjectID
	unsubscribed []statesyncDomain.ObjectID
}

func (l *mockLogs) SubscribeLogs(ctx context.Context, sink statesyncApp.Sink, addresses []common.Address, fromBlock uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribed = append(l.subscribed, sink.ID())
}

func (l *mockLogs) Unsubscribe(id statesyncDomain.ObjectID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unsubscribed = append(l.unsubscribed, id)
}

type mockGas struct {
	price *chainDomain.GasPrice
	err   error
}

func (g *mockGas) GasPrice(ctx context.Context) (*chainDomain.GasPrice, error) {
	return g.price, g.err
}

func newTestRegistry(pairs map[common.Address]*mockPair, logs *mockLogs) *Registry {
	env := statesyncApp.Environment{
		Role:   statesyncDomain.RoleStandalone,
		Logs:   logs,
		Logger: &mockLogger{},
	}
	factory := func(address common.Address) (PairSource, error) {
		p, ok := pairs[address]
		if !ok {
			return nil, errors.New("unknown pair")
		}
		return p, nil
	}
	return NewRegistry(RegistryConfig{Namespace: "uniswapv2", HistoryWindow: 8}, env, factory, asset.DefaultRegistry(nil), &mockLogger{})
}
