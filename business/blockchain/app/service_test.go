package app

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/poolsync/business/blockchain/domain"
)

type fakeReader struct {
	headerCalls int
	ranges      [][2]uint64
	logs        []types.Log
	err         error
}

func (f *fakeReader) HeaderByNumber(ctx context.Context, number *uint64) (*domain.Block, error) {
	f.headerCalls++
	if f.err != nil {
		return nil, f.err
	}
	n := uint64(1000)
	if number != nil {
		n = *number
	}
	return &domain.Block{Number: n}, nil
}

func (f *fakeReader) FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address) ([]types.Log, error) {
	f.ranges = append(f.ranges, [2]uint64{from, to})
	if f.err != nil {
		return nil, f.err
	}
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeReader) CallContract(ctx context.Context, to common.Address, data []byte, blockNumber uint64) ([]byte, error) {
	return nil, nil
}

func (f *fakeReader) GasPrice(ctx context.Context) (*domain.GasPrice, error) {
	return nil, nil
}

type fakeSubscriber struct{}

func (fakeSubscriber) Subscribe(ctx context.Context) (<-chan *domain.Block, error) { return nil, nil }
func (fakeSubscriber) State() domain.ConnectionState                               { return domain.StateConnected }

func TestBlockchainService_LogsChunksRange(t *testing.T) {
	reader := &fakeReader{logs: []types.Log{
		{BlockNumber: 5},
		{BlockNumber: 15, Removed: true},
		{BlockNumber: 25},
	}}
	svc := NewBlockchainService(fakeSubscriber{}, reader, ServiceConfig{MaxLogRange: 10})
	defer svc.Close()

	logs, err := svc.Logs(context.Background(), 1, 25, []common.Address{{1}})
	if err != nil {
		t.Fatalf("logs: %v", err)
	}

	want := [][2]uint64{{1, 10}, {11, 20}, {21, 25}}
	if len(reader.ranges) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), reader.ranges)
	}
	for i := range want {
		if reader.ranges[i] != want[i] {
			t.Errorf("call %d: expected %v, got %v", i, want[i], reader.ranges[i])
		}
	}
	if len(logs) != 2 {
		t.Errorf("expected removed logs filtered, got %d", len(logs))
	}
}

func TestBlockchainService_LogsEmptyInputs(t *testing.T) {
	reader := &fakeReader{}
	svc := NewBlockchainService(fakeSubscriber{}, reader, DefaultServiceConfig())
	defer svc.Close()

	if logs, err := svc.Logs(context.Background(), 10, 5, []common.Address{{1}}); err != nil || logs != nil {
		t.Errorf("expected nothing for inverted range")
	}
	if logs, err := svc.Logs(context.Background(), 1, 5, nil); err != nil || logs != nil {
		t.Errorf("expected nothing without addresses")
	}
	if len(reader.ranges) != 0 {
		t.Errorf("expected no rpc calls, got %d", len(reader.ranges))
	}
}

func TestBlockchainService_HeaderCache(t *testing.T) {
	ctx := context.Background()
	reader := &fakeReader{}
	svc := NewBlockchainService(fakeSubscriber{}, reader, DefaultServiceConfig())
	defer svc.Close()

	for i := 0; i < 3; i++ {
		if _, err := svc.Header(ctx, 42); err != nil {
			t.Fatalf("header: %v", err)
		}
	}
	if reader.headerCalls != 1 {
		t.Errorf("expected one rpc call, got %d", reader.headerCalls)
	}

	svc.ForgetHeadersAbove(ctx, 41, 43)
	_, _ = svc.Header(ctx, 42)
	if reader.headerCalls != 2 {
		t.Errorf("expected refetch after forget, got %d calls", reader.headerCalls)
	}
}

func TestBlockchainService_HeadersSkipsFailures(t *testing.T) {
	reader := &fakeReader{err: errors.New("rpc down")}
	svc := NewBlockchainService(fakeSubscriber{}, reader, DefaultServiceConfig())
	defer svc.Close()

	headers := svc.Headers(context.Background(), []types.Log{{BlockNumber: 1}, {BlockNumber: 1}, {BlockNumber: 2}})
	if len(headers) != 0 {
		t.Errorf("expected no headers, got %d", len(headers))
	}
	if reader.headerCalls != 2 {
		t.Errorf("expected one call per distinct block, got %d", reader.headerCalls)
	}
}

func TestBlockchainService_FetchHeaderBypassesCache(t *testing.T) {
	ctx := context.Background()
	reader := &fakeReader{}
	svc := NewBlockchainService(fakeSubscriber{}, reader, DefaultServiceConfig())
	defer svc.Close()

	svc.RememberHeader(ctx, &domain.Block{Number: 7, Hash: common.HexToHash("0xdead")})

	block, err := svc.FetchHeader(ctx, 7)
	if err != nil {
		t.Fatalf("fetch header: %v", err)
	}
	if reader.headerCalls != 1 {
		t.Errorf("expected an rpc call, got %d", reader.headerCalls)
	}
	if block.Hash == common.HexToHash("0xdead") {
		t.Error("expected the node's header, got the cached one")
	}

	// The fetched header replaces the cached one.
	cached, _ := svc.Header(ctx, 7)
	if cached != block {
		t.Error("expected fetched header to be cached")
	}
	if reader.headerCalls != 1 {
		t.Errorf("expected cache hit, got %d rpc calls", reader.headerCalls)
	}
}
