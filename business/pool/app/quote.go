package app

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	chainDomain "github.com/fd1az/poolsync/business/blockchain/domain"
	"github.com/fd1az/poolsync/business/pool/domain"
	"github.com/fd1az/poolsync/internal/apperror"
	"github.com/fd1az/poolsync/internal/asset"
	"github.com/fd1az/poolsync/internal/logger"
)

const (
	tracerName = "pool"
	meterName  = "pool"
)

// QuoteConfig holds quoting parameters.
type QuoteConfig struct {
	FeeBps  int64
	SwapGas uint64 // zero disables gas estimates
}

// DefaultQuoteConfig returns Uniswap V2 defaults.
func DefaultQuoteConfig() QuoteConfig {
	return QuoteConfig{FeeBps: 30, SwapGas: 110_000}
}

type quoteMetrics struct {
	quotesTotal  metric.Int64Counter
	quoteErrors  metric.Int64Counter
	quoteLatency metric.Float64Histogram
}

// QuoteService prices swaps from tracked pair state.
type QuoteService struct {
	config   QuoteConfig
	registry *Registry
	gas      GasPricer
	logger   logger.LoggerInterface
	tracer   trace.Tracer
	metrics  *quoteMetrics
}

// NewQuoteService creates a quote service. gas may be nil.
func NewQuoteService(cfg QuoteConfig, registry *Registry, gas GasPricer, log logger.LoggerInterface) (*QuoteService, error) {
	s := &QuoteService{
		config:   cfg,
		registry: registry,
		gas:      gas,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}
	if err := s.initMetrics(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QuoteService) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &quoteMetrics{}

	s.metrics.quotesTotal, err = meter.Int64Counter(
		"pool_quotes_total",
		metric.WithDescription("Total quote requests"),
	)
	if err != nil {
		return err
	}

	s.metrics.quoteErrors, err = meter.Int64Counter(
		"pool_quote_errors_total",
		metric.WithDescription("Total failed quotes"),
	)
	if err != nil {
		return err
	}

	s.metrics.quoteLatency, err = meter.Float64Histogram(
		"pool_quote_latency_ms",
		metric.WithDescription("Quote latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// Quote prices selling amountIn whole units of tokenIn on pair, using state at
// least as recent as minBlock.
func (s *QuoteService) Quote(ctx context.Context, pair, tokenIn common.Address, amountIn decimal.Decimal, minBlock uint64) (*domain.Quote, error) {
	ctx, span := s.tracer.Start(ctx, "pool.quote",
		trace.WithAttributes(
			attribute.String("pair", pair.Hex()),
			attribute.String("token_in", tokenIn.Hex()),
			attribute.String("amount_in", amountIn.String()),
		),
	)
	defer span.End()

	start := time.Now()
	s.metrics.quotesTotal.Add(ctx, 1)

	q, err := s.quote(ctx, pair, tokenIn, amountIn, minBlock)
	s.metrics.quoteLatency.Record(ctx, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		s.metrics.quoteErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", string(apperror.GetCode(err)))))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("amount_out", q.AmountOut.ToDecimal().String()),
		attribute.Int64("block", int64(q.BlockNumber)),
	)
	span.SetStatus(codes.Ok, "quoted")
	return q, nil
}

func (s *QuoteService) quote(ctx context.Context, pair, tokenIn common.Address, amountIn decimal.Decimal, minBlock uint64) (*domain.Quote, error) {
	tracker, ok := s.registry.Tracker(pair)
	if !ok {
		return nil, apperror.New(apperror.CodeObjectNotTracked, apperror.WithContext(pair.Hex()))
	}

	state, ok := tracker.State(minBlock)
	if !ok {
		return nil, apperror.New(apperror.CodeStateUnavailable, apperror.WithContext(pair.Hex()))
	}
	blockNumber, _ := tracker.BlockNumber()

	if !state.Has(tokenIn) {
		return nil, apperror.New(apperror.CodeUnknownToken, apperror.WithContext(tokenIn.Hex()))
	}
	token0, token1, err := s.registry.tokenAssets(ctx, pair, state)
	if err != nil {
		return nil, err
	}
	assetIn, assetOut := token0, token1
	if tokenIn == state.Token1 {
		assetIn, assetOut = token1, token0
	}

	in, err := asset.FromDecimal(assetIn, amountIn)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidInput, apperror.WithCause(err), apperror.WithContext(amountIn.String()))
	}

	rawOut, err := state.AmountOut(tokenIn, in.Raw(), s.config.FeeBps)
	if err != nil {
		return nil, quoteError(err)
	}
	out, err := asset.NewAmount(assetOut, rawOut)
	if err != nil {
		return nil, quoteError(err)
	}

	spot, err := state.SpotPrice(tokenIn, assetIn.Decimals(), assetOut.Decimals())
	if err != nil {
		return nil, quoteError(err)
	}

	q := &domain.Quote{
		Pair:           pair,
		AmountIn:       in,
		AmountOut:      out,
		SpotPrice:      spot,
		ExecutionPrice: out.Per(in),
		BlockNumber:    blockNumber,
		Gas:            s.gasEstimate(ctx),
	}

	s.logger.Debug(ctx, "pool quote",
		"pair", pair.Hex(),
		"amount_in", in.String(),
		"amount_out", out.String(),
		"block", blockNumber,
	)
	return q, nil
}

// gasEstimate is best effort; a quote without gas is still useful.
func (s *QuoteService) gasEstimate(ctx context.Context) *chainDomain.GasEstimate {
	if s.gas == nil || s.config.SwapGas == 0 {
		return nil
	}
	price, err := s.gas.GasPrice(ctx)
	if err != nil {
		s.logger.Warn(ctx, "gas price unavailable for quote", "error", err)
		return nil
	}
	return chainDomain.NewGasEstimate(s.config.SwapGas, price)
}

func quoteError(err error) error {
	switch {
	case errors.Is(err, domain.ErrTokenNotInPair):
		return apperror.New(apperror.CodeUnknownToken, apperror.WithCause(err))
	case errors.Is(err, domain.ErrInsufficientLiquidity):
		return apperror.New(apperror.CodeInsufficientLiquidity, apperror.WithCause(err))
	default:
		return apperror.New(apperror.CodeInvalidQuote, apperror.WithCause(err))
	}
}
