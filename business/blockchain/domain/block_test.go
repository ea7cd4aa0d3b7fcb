package domain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func TestBlock_Extends(t *testing.T) {
	parent := &Block{Number: 10, Hash: common.HexToHash("0x0a")}

	tests := []struct {
		name  string
		block *Block
		want  bool
	}{
		{name: "child", block: &Block{Number: 11, ParentHash: parent.Hash}, want: true},
		{name: "wrong parent hash", block: &Block{Number: 11, ParentHash: common.HexToHash("0x0b")}, want: false},
		{name: "gap", block: &Block{Number: 12, ParentHash: parent.Hash}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.block.Extends(parent); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if (&Block{Number: 1}).Extends(nil) {
		t.Error("expected false for nil parent")
	}
}

func TestGasEstimate(t *testing.T) {
	price := NewGasPrice(big.NewInt(20_000_000_000)) // 20 gwei
	if !price.Gwei().Equal(mustDecimal(t, "20")) {
		t.Errorf("expected 20 gwei, got %s", price.Gwei())
	}

	est := NewGasEstimate(100_000, price)
	if est.TotalWei.String() != "2000000000000000" {
		t.Errorf("unexpected total wei %s", est.TotalWei)
	}
	if !est.TotalEth().Equal(mustDecimal(t, "0.002")) {
		t.Errorf("expected 0.002 eth, got %s", est.TotalEth())
	}
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return d
}
