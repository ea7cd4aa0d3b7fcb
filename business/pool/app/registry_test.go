package app

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	statesyncDomain "github.com/fd1az/poolsync/business/statesync/domain"
	"github.com/fd1az/poolsync/internal/apperror"
	"github.com/fd1az/poolsync/internal/asset"
)

func TestRegistry_TrackBindsTokens(t *testing.T) {
	logs := &mockLogs{}
	r := newTestRegistry(map[common.Address]*mockPair{pairA: usdcWethPair(pairA)}, logs)

	if err := r.Track(context.Background(), pairA, 100); err != nil {
		t.Fatalf("Track: %v", err)
	}

	pairs := r.Pairs()
	if len(pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(pairs))
	}
	info := pairs[0]
	if info.Token0 != asset.USDC || info.Token1 != asset.WETH {
		t.Errorf("tokens = %v/%v", info.Token0, info.Token1)
	}
	if !info.HasState || !info.Valid || info.BlockNumber != 100 {
		t.Errorf("info = %+v", info)
	}
	if info.Reserve1 == nil || info.Reserve1.String() != "1000 WETH" {
		t.Errorf("reserve1 = %v", info.Reserve1)
	}
	if len(logs.subscribed) != 1 || logs.subscribed[0] != r.ObjectID(pairA) {
		t.Errorf("subscribed = %v", logs.subscribed)
	}
}

func TestRegistry_TrackTwiceFails(t *testing.T) {
	r := newTestRegistry(map[common.Address]*mockPair{pairA: usdcWethPair(pairA)}, &mockLogs{})
	if err := r.Track(context.Background(), pairA, 100); err != nil {
		t.Fatalf("Track: %v", err)
	}

	err := r.Track(context.Background(), pairA, 101)
	if apperror.GetCode(err) != apperror.CodeObjectAlreadyTracked {
		t.Errorf("err = %v, want already tracked", err)
	}
}

func TestRegistry_TrackAllContinuesPastFailures(t *testing.T) {
	broken := usdcWethPair(pairB)
	broken.genErr = errors.New("reverted")
	r := newTestRegistry(map[common.Address]*mockPair{pairA: usdcWethPair(pairA), pairB: broken}, &mockLogs{})

	err := r.TrackAll(context.Background(), []common.Address{pairB, pairA}, 100)
	if err == nil {
		t.Fatal("expected joined error")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
	if _, ok := r.Tracker(pairA); !ok {
		t.Error("pairA not tracked")
	}
}

func TestRegistry_Untrack(t *testing.T) {
	logs := &mockLogs{}
	r := newTestRegistry(map[common.Address]*mockPair{pairA: usdcWethPair(pairA)}, logs)
	_ = r.Track(context.Background(), pairA, 100)

	if !r.Untrack(pairA) {
		t.Fatal("Untrack returned false")
	}
	if r.Untrack(pairA) {
		t.Error("second Untrack returned true")
	}
	if len(logs.unsubscribed) != 1 {
		t.Errorf("unsubscribed = %v", logs.unsubscribed)
	}
}

func TestRegistry_HandleNewObject(t *testing.T) {
	tests := []struct {
		name    string
		req     statesyncDomain.NewObjectRequest
		tracked bool
	}{
		{"matching namespace", statesyncDomain.NewObjectRequest{Namespace: "uniswapv2", Name: "0x00000000000000000000000000000000000000aa", BlockNumber: 50}, true},
		{"other namespace", statesyncDomain.NewObjectRequest{Namespace: "curve", Name: "0x00000000000000000000000000000000000000aa"}, false},
		{"not an address", statesyncDomain.NewObjectRequest{Namespace: "uniswapv2", Name: "weth-usdc"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(map[common.Address]*mockPair{pairA: usdcWethPair(pairA)}, &mockLogs{})
			r.HandleNewObject(context.Background(), tt.req)

			tr, ok := r.Tracker(pairA)
			if ok != tt.tracked {
				t.Fatalf("tracked = %v, want %v", ok, tt.tracked)
			}
			if ok {
				if bn, _ := tr.BlockNumber(); bn != 50 {
					t.Errorf("block = %d, want 50", bn)
				}
			}
		})
	}
}

func TestRegistry_Ready(t *testing.T) {
	r := newTestRegistry(map[common.Address]*mockPair{pairA: usdcWethPair(pairA)}, &mockLogs{})
	if synced, total := r.Ready(); synced != 0 || total != 0 {
		t.Errorf("empty registry ready = %d/%d", synced, total)
	}

	_ = r.Track(context.Background(), pairA, 100)
	if synced, total := r.Ready(); synced != 1 || total != 1 {
		t.Errorf("ready = %d/%d, want 1/1", synced, total)
	}
}
