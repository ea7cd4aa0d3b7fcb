package app

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	chainDomain "github.com/fd1az/poolsync/business/blockchain/domain"
	"github.com/fd1az/poolsync/internal/apperror"
	"github.com/fd1az/poolsync/internal/asset"
)

func newTestQuoteService(t *testing.T, gas GasPricer) *QuoteService {
	t.Helper()
	r := newTestRegistry(map[common.Address]*mockPair{pairA: usdcWethPair(pairA)}, &mockLogs{})
	if err := r.Track(context.Background(), pairA, 100); err != nil {
		t.Fatalf("Track: %v", err)
	}
	s, err := NewQuoteService(DefaultQuoteConfig(), r, gas, &mockLogger{})
	if err != nil {
		t.Fatalf("NewQuoteService: %v", err)
	}
	return s
}

func TestQuoteService_Quote(t *testing.T) {
	gas := &mockGas{price: chainDomain.NewGasPrice(big.NewInt(20_000_000_000))}
	s := newTestQuoteService(t, gas)

	q, err := s.Quote(context.Background(), pairA, asset.AddrWETH, decimal.NewFromInt(1), 100)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}

	if q.AmountIn.Asset() != asset.WETH || q.AmountOut.Asset() != asset.USDC {
		t.Errorf("assets = %v -> %v", q.AmountIn.Asset(), q.AmountOut.Asset())
	}
	// 1 WETH into 1000 WETH / 2M USDC at 0.3% fee.
	if got := q.AmountOut.Raw().String(); got != "1992013962" {
		t.Errorf("amount out = %s, want 1992013962", got)
	}
	if q.SpotPrice.String() != "2000" {
		t.Errorf("spot = %s", q.SpotPrice)
	}
	if !q.PriceImpact().IsPositive() {
		t.Errorf("impact = %s, want positive", q.PriceImpact())
	}
	if q.BlockNumber != 100 {
		t.Errorf("block = %d", q.BlockNumber)
	}
	if q.Gas == nil || q.Gas.TotalEth().String() != "0.0022" {
		t.Errorf("gas = %+v", q.Gas)
	}
}

func TestQuoteService_GasFailureStillQuotes(t *testing.T) {
	s := newTestQuoteService(t, &mockGas{err: errors.New("rpc down")})

	q, err := s.Quote(context.Background(), pairA, asset.AddrUSDC, decimal.NewFromInt(2000), 0)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Gas != nil {
		t.Errorf("gas = %+v, want nil", q.Gas)
	}
	if q.AmountOut.Asset() != asset.WETH {
		t.Errorf("out asset = %v", q.AmountOut.Asset())
	}
}

func TestQuoteService_Errors(t *testing.T) {
	s := newTestQuoteService(t, nil)

	tests := []struct {
		name     string
		pair     common.Address
		tokenIn  common.Address
		amount   decimal.Decimal
		minBlock uint64
		want     apperror.Code
	}{
		{"untracked pair", pairB, asset.AddrWETH, decimal.NewFromInt(1), 0, apperror.CodeObjectNotTracked},
		{"state too old", pairA, asset.AddrWETH, decimal.NewFromInt(1), 101, apperror.CodeStateUnavailable},
		{"token not in pair", pairA, asset.AddrDAI, decimal.NewFromInt(1), 0, apperror.CodeUnknownToken},
		{"too precise", pairA, asset.AddrUSDC, decimal.RequireFromString("0.0000001"), 0, apperror.CodeInvalidInput},
		{"zero amount", pairA, asset.AddrUSDC, decimal.Zero, 0, apperror.CodeInvalidQuote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Quote(context.Background(), tt.pair, tt.tokenIn, tt.amount, tt.minBlock)
			if got := apperror.GetCode(err); got != tt.want {
				t.Errorf("code = %s, want %s (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestQuoteService_InvalidatedStateUnavailable(t *testing.T) {
	s := newTestQuoteService(t, nil)
	tr, _ := s.registry.Tracker(pairA)
	tr.Invalidate()

	_, err := s.Quote(context.Background(), pairA, asset.AddrWETH, decimal.NewFromInt(1), 0)
	if apperror.GetCode(err) != apperror.CodeStateUnavailable {
		t.Errorf("err = %v, want state unavailable", err)
	}
}
