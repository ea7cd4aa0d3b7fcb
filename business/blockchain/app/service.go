package app

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/poolsync/business/blockchain/domain"
	"github.com/fd1az/poolsync/internal/cache"
)

// ServiceConfig holds BlockchainService settings.
type ServiceConfig struct {
	MaxLogRange    uint64        // Widest block range per eth_getLogs call
	HeaderCacheTTL time.Duration // How long fetched headers are reused
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxLogRange:    2_000,
		HeaderCacheTTL: 10 * time.Minute,
	}
}

// BlockchainService coordinates blockchain interactions.
type BlockchainService struct {
	subscriber BlockSubscriber
	reader     ChainReader
	config     ServiceConfig
	headers    *cache.Cache[uint64, *domain.Block]
}

// NewBlockchainService creates a new BlockchainService.
func NewBlockchainService(subscriber BlockSubscriber, reader ChainReader, cfg ServiceConfig) *BlockchainService {
	if cfg.MaxLogRange == 0 {
		cfg.MaxLogRange = DefaultServiceConfig().MaxLogRange
	}
	return &BlockchainService{
		subscriber: subscriber,
		reader:     reader,
		config:     cfg,
		headers:    cache.New[uint64, *domain.Block](time.Minute),
	}
}

// SubscribeBlocks starts the block subscription and returns the channel.
func (s *BlockchainService) SubscribeBlocks(ctx context.Context) (<-chan *domain.Block, error) {
	return s.subscriber.Subscribe(ctx)
}

// LatestBlock returns the chain head.
func (s *BlockchainService) LatestBlock(ctx context.Context) (*domain.Block, error) {
	block, err := s.reader.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}
	s.RememberHeader(ctx, block)
	return block, nil
}

// Header returns the header at number, from cache when possible.
func (s *BlockchainService) Header(ctx context.Context, number uint64) (*domain.Block, error) {
	if block, ok := s.headers.Get(ctx, number); ok {
		return block, nil
	}

	block, err := s.reader.HeaderByNumber(ctx, &number)
	if err != nil {
		return nil, err
	}
	s.RememberHeader(ctx, block)
	return block, nil
}

// FetchHeader reads the header at number from the node, bypassing the cache,
// and caches the result.
func (s *BlockchainService) FetchHeader(ctx context.Context, number uint64) (*domain.Block, error) {
	block, err := s.reader.HeaderByNumber(ctx, &number)
	if err != nil {
		return nil, err
	}
	s.RememberHeader(ctx, block)
	return block, nil
}

// RememberHeader caches a header seen on the head subscription. It replaces
// any header cached for the same number, which is how reorged blocks are dropped.
func (s *BlockchainService) RememberHeader(ctx context.Context, block *domain.Block) {
	s.headers.Set(ctx, block.Number, block, s.config.HeaderCacheTTL)
}

// ForgetHeadersAbove drops cached headers in (number, upTo].
func (s *BlockchainService) ForgetHeadersAbove(ctx context.Context, number, upTo uint64) {
	for n := number + 1; n <= upTo; n++ {
		s.headers.Delete(ctx, n)
	}
}

// Headers returns headers for each distinct block number in logs. Each block
// is fetched at most once; missing headers are left out and callers log the gap.
func (s *BlockchainService) Headers(ctx context.Context, logs []types.Log) map[uint64]*domain.Block {
	out := make(map[uint64]*domain.Block)
	tried := make(map[uint64]struct{})
	for _, l := range logs {
		if _, ok := tried[l.BlockNumber]; ok {
			continue
		}
		tried[l.BlockNumber] = struct{}{}
		if block, err := s.Header(ctx, l.BlockNumber); err == nil {
			out[l.BlockNumber] = block
		}
	}
	return out
}

// Logs fetches logs for addresses in [from, to] in chunks of at most MaxLogRange blocks.
func (s *BlockchainService) Logs(ctx context.Context, from, to uint64, addresses []common.Address) ([]types.Log, error) {
	if from > to || len(addresses) == 0 {
		return nil, nil
	}

	var out []types.Log
	for start := from; start <= to; start += s.config.MaxLogRange {
		end := start + s.config.MaxLogRange - 1
		if end > to {
			end = to
		}

		logs, err := s.reader.FilterLogs(ctx, start, end, addresses)
		if err != nil {
			return nil, err
		}
		for _, l := range logs {
			if !l.Removed {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

// CallContract executes a read-only call as of blockNumber; zero means latest.
func (s *BlockchainService) CallContract(ctx context.Context, to common.Address, data []byte, blockNumber uint64) ([]byte, error) {
	return s.reader.CallContract(ctx, to, data, blockNumber)
}

// GasPrice retrieves the current gas price.
func (s *BlockchainService) GasPrice(ctx context.Context) (*domain.GasPrice, error) {
	return s.reader.GasPrice(ctx)
}

// ConnectionState returns the current connection state.
func (s *BlockchainService) ConnectionState() domain.ConnectionState {
	return s.subscriber.State()
}

// Close releases the header cache.
func (s *BlockchainService) Close() {
	s.headers.Close()
}
