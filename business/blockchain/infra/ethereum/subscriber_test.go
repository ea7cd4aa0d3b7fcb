package ethereum

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/poolsync/business/blockchain/domain"
	"github.com/fd1az/poolsync/internal/logger"
)

func TestSortLogs(t *testing.T) {
	logs := []types.Log{
		{BlockNumber: 2, Index: 0},
		{BlockNumber: 1, Index: 5},
		{BlockNumber: 1, Index: 2},
	}
	SortLogs(logs)

	want := [][2]uint64{{1, 2}, {1, 5}, {2, 0}}
	for i, l := range logs {
		if l.BlockNumber != want[i][0] || uint64(l.Index) != want[i][1] {
			t.Errorf("position %d: got (%d, %d)", i, l.BlockNumber, l.Index)
		}
	}
}

func TestHeaderToBlock(t *testing.T) {
	parent := common.HexToHash("0x01")
	header := &types.Header{Number: big.NewInt(19_000_000), ParentHash: parent, Time: 1_700_000_000, BaseFee: big.NewInt(7)}

	b := headerToBlock(header)
	if b.Number != 19_000_000 || b.ParentHash != parent || b.Hash != header.Hash() {
		t.Errorf("unexpected block %+v", b)
	}
	if b.Timestamp.Unix() != 1_700_000_000 {
		t.Errorf("unexpected timestamp %v", b.Timestamp)
	}
}

func TestNewSubscriber_RequiresURL(t *testing.T) {
	if _, err := NewSubscriber(SubscriberConfig{}, logger.NewNop()); err == nil {
		t.Error("expected error without urls")
	}
}

func TestSubscriber_EmitDropsWhenFull(t *testing.T) {
	cfg := DefaultSubscriberConfig("", "http://localhost:8545")
	cfg.BufferSize = 1
	s, err := NewSubscriber(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx := context.Background()
	s.emit(ctx, &domain.Block{Number: 1})
	s.emit(ctx, &domain.Block{Number: 2})

	if got := (<-s.blocks).Number; got != 1 {
		t.Errorf("expected first head kept, got %d", got)
	}
	if s.Status().LastBlock != 2 {
		t.Errorf("expected last block 2, got %d", s.Status().LastBlock)
	}
	if s.State() != domain.StateDisconnected {
		t.Errorf("unexpected state %s", s.State())
	}
	_ = s.Close()
	_ = s.Close()
}

func TestSubscriber_IsNewHead(t *testing.T) {
	s, err := NewSubscriber(DefaultSubscriberConfig("", "http://localhost:8545"), logger.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	hashA, hashB := common.HexToHash("0xaa"), common.HexToHash("0xbb")

	if !s.isNewHead(&domain.Block{Number: 10, Hash: hashA}) {
		t.Fatal("first head must be new")
	}
	s.emit(context.Background(), &domain.Block{Number: 10, Hash: hashA})

	tests := []struct {
		name  string
		block domain.Block
		want  bool
	}{
		{"same head", domain.Block{Number: 10, Hash: hashA}, false},
		{"replaced at same height", domain.Block{Number: 10, Hash: hashB}, true},
		{"advanced", domain.Block{Number: 11, Hash: hashB}, true},
		{"behind", domain.Block{Number: 9, Hash: hashB}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.isNewHead(&tt.block); got != tt.want {
				t.Errorf("isNewHead = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubscriber_RedialBackoff(t *testing.T) {
	cfg := DefaultSubscriberConfig("ws://localhost:8546", "")
	cfg.ReconnectDelay = 100 * time.Millisecond
	cfg.MaxReconnect = 300 * time.Millisecond
	s, err := NewSubscriber(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var last time.Duration
	for i := 0; i < 6; i++ {
		last = s.redial.NextBackOff()
	}
	// Randomization is +/-50% around the capped interval.
	if last > 450*time.Millisecond {
		t.Errorf("delay %v exceeds cap", last)
	}

	s.connected()
	if d := s.redial.NextBackOff(); d > 150*time.Millisecond {
		t.Errorf("delay after reset = %v, want about the initial delay", d)
	}
	if s.State() != domain.StateConnected {
		t.Errorf("state = %s", s.State())
	}
}
