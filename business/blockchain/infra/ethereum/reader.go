package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/poolsync/business/blockchain/app"
	"github.com/fd1az/poolsync/business/blockchain/domain"
	"github.com/fd1az/poolsync/internal/apperror"
	"github.com/fd1az/poolsync/internal/cache"
	"github.com/fd1az/poolsync/internal/circuitbreaker"
	"github.com/fd1az/poolsync/internal/logger"
	"github.com/fd1az/poolsync/internal/ratelimit"
)

var _ app.ChainReader = (*Reader)(nil)

// ReaderConfig holds configuration for the RPC reader.
type ReaderConfig struct {
	RPCURL         string        // HTTP endpoint
	RequestsPerSec float64       // Outbound RPC budget, 0 disables throttling
	Burst          int           // Token bucket burst
	GasPriceTTL    time.Duration // How long to cache gas prices
	MaxGasPrice    *big.Int      // Prices above this are clamped
	HTTPClient     *http.Client  // Optional transport for the JSON-RPC connection
}

// DefaultReaderConfig returns sensible defaults.
func DefaultReaderConfig(rpcURL string) ReaderConfig {
	maxGas, _ := new(big.Int).SetString("500000000000", 10) // 500 gwei

	return ReaderConfig{
		RPCURL:         rpcURL,
		RequestsPerSec: 25,
		Burst:          10,
		GasPriceTTL:    12 * time.Second, // ~1 block
		MaxGasPrice:    maxGas,
	}
}

type readerMetrics struct {
	calls        metric.Int64Counter
	callErrors   metric.Int64Counter
	logsFetched  metric.Int64Counter
	gasPriceGwei metric.Float64Gauge
}

// Reader serves historical chain reads over HTTP with throttling and a
// circuit breaker.
type Reader struct {
	config ReaderConfig
	logger logger.LoggerInterface

	client   *ethclient.Client
	clientMu sync.RWMutex

	limiter  *ratelimit.Limiter
	cb       *circuitbreaker.CircuitBreaker[[]byte]
	logsCB   *circuitbreaker.CircuitBreaker[[]types.Log]
	headerCB *circuitbreaker.CircuitBreaker[*types.Header]
	gasCache *cache.Cache[string, *domain.GasPrice]

	tracer  trace.Tracer
	metrics *readerMetrics
}

// NewReader creates a reader. Call Connect before use.
func NewReader(cfg ReaderConfig, log logger.LoggerInterface) (*Reader, error) {
	r := &Reader{
		config:   cfg,
		logger:   log,
		limiter:  ratelimit.New(cfg.RequestsPerSec, cfg.Burst),
		gasCache: cache.New[string, *domain.GasPrice](5 * time.Minute),
		tracer:   otel.Tracer(tracerName),
	}

	if err := r.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	onChange := func(name string, from, to gobreaker.State) {
		r.logger.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	cfgFor := func(name string) circuitbreaker.Config {
		c := circuitbreaker.DefaultConfig(name)
		c.OnStateChange = onChange
		return c
	}
	r.cb = circuitbreaker.New[[]byte](cfgFor("eth-call"))
	r.logsCB = circuitbreaker.New[[]types.Log](cfgFor("eth-logs"))
	r.headerCB = circuitbreaker.New[*types.Header](cfgFor("eth-header"))

	return r, nil
}

func (r *Reader) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	r.metrics = &readerMetrics{}

	r.metrics.calls, err = meter.Int64Counter(
		"eth_rpc_calls_total",
		metric.WithDescription("Total RPC reads by method"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	r.metrics.callErrors, err = meter.Int64Counter(
		"eth_rpc_errors_total",
		metric.WithDescription("Failed RPC reads by method"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	r.metrics.logsFetched, err = meter.Int64Counter(
		"eth_logs_fetched_total",
		metric.WithDescription("Logs returned by eth_getLogs"),
		metric.WithUnit("{log}"),
	)
	if err != nil {
		return err
	}

	r.metrics.gasPriceGwei, err = meter.Float64Gauge(
		"eth_gas_price_gwei",
		metric.WithDescription("Current gas price in gwei"),
		metric.WithUnit("gwei"),
	)
	return err
}

// Connect dials the RPC endpoint.
func (r *Reader) Connect(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "eth.reader.connect",
		trace.WithAttributes(attribute.String("url", r.config.RPCURL)),
	)
	defer span.End()

	var opts []rpc.ClientOption
	if r.config.HTTPClient != nil {
		opts = append(opts, rpc.WithHTTPClient(r.config.HTTPClient))
	}
	rc, err := rpc.DialOptions(ctx, r.config.RPCURL, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to connect rpc reader"))
	}

	r.clientMu.Lock()
	r.client = ethclient.NewClient(rc)
	r.clientMu.Unlock()

	r.logger.Info(ctx, "rpc reader connected", "url", r.config.RPCURL)
	return nil
}

// begin throttles and returns the connected client.
func (r *Reader) begin(ctx context.Context, method string) (*ethclient.Client, error) {
	r.metrics.calls.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))

	r.clientMu.RLock()
	client := r.client
	r.clientMu.RUnlock()

	if client == nil {
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithContext("rpc reader not connected"))
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, apperror.New(apperror.CodeEthereumRPCError, apperror.WithCause(err))
	}
	return client, nil
}

func (r *Reader) fail(ctx context.Context, span trace.Span, method string, err error) {
	r.metrics.callErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
	span.RecordError(err)
	span.SetStatus(codes.Error, method+" failed")
}

// HeaderByNumber implements app.ChainReader.
func (r *Reader) HeaderByNumber(ctx context.Context, number *uint64) (*domain.Block, error) {
	ctx, span := r.tracer.Start(ctx, "eth.header")
	defer span.End()

	client, err := r.begin(ctx, "eth_getBlockByNumber")
	if err != nil {
		r.fail(ctx, span, "eth_getBlockByNumber", err)
		return nil, err
	}

	var bn *big.Int
	if number != nil {
		bn = new(big.Int).SetUint64(*number)
		span.SetAttributes(attribute.Int64("block_number", int64(*number)))
	}

	header, err := r.headerCB.Execute(func() (*types.Header, error) {
		return client.HeaderByNumber(ctx, bn)
	})
	if err != nil {
		r.fail(ctx, span, "eth_getBlockByNumber", err)
		return nil, apperror.New(apperror.CodeBlockNotFound,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("block %v", bn)))
	}

	return headerToBlock(header), nil
}

// FilterLogs implements app.ChainReader.
func (r *Reader) FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address) ([]types.Log, error) {
	ctx, span := r.tracer.Start(ctx, "eth.filter_logs",
		trace.WithAttributes(
			attribute.Int64("from", int64(from)),
			attribute.Int64("to", int64(to)),
			attribute.Int("addresses", len(addresses)),
		),
	)
	defer span.End()

	client, err := r.begin(ctx, "eth_getLogs")
	if err != nil {
		r.fail(ctx, span, "eth_getLogs", err)
		return nil, err
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addresses,
	}

	logs, err := r.logsCB.Execute(func() ([]types.Log, error) {
		return client.FilterLogs(ctx, query)
	})
	if err != nil {
		r.fail(ctx, span, "eth_getLogs", err)
		return nil, apperror.New(apperror.CodeLogFetchFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("blocks %d-%d", from, to)))
	}

	SortLogs(logs)
	r.metrics.logsFetched.Add(ctx, int64(len(logs)))
	span.SetAttributes(attribute.Int("logs", len(logs)))
	return logs, nil
}

// CallContract implements app.ChainReader.
func (r *Reader) CallContract(ctx context.Context, to common.Address, data []byte, blockNumber uint64) ([]byte, error) {
	ctx, span := r.tracer.Start(ctx, "eth.call",
		trace.WithAttributes(
			attribute.String("to", to.Hex()),
			attribute.Int64("block_number", int64(blockNumber)),
		),
	)
	defer span.End()

	client, err := r.begin(ctx, "eth_call")
	if err != nil {
		r.fail(ctx, span, "eth_call", err)
		return nil, err
	}

	msg := ethereum.CallMsg{To: &to, Data: data}
	var at *big.Int
	if blockNumber > 0 {
		at = new(big.Int).SetUint64(blockNumber)
	}
	out, err := r.cb.Execute(func() ([]byte, error) {
		return client.CallContract(ctx, msg, at)
	})
	if err != nil {
		r.fail(ctx, span, "eth_call", err)
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s at block %d", to.Hex(), blockNumber)))
	}
	return out, nil
}

// GasPrice implements app.ChainReader. Prices are cached for GasPriceTTL and
// clamped to MaxGasPrice.
func (r *Reader) GasPrice(ctx context.Context) (*domain.GasPrice, error) {
	ctx, span := r.tracer.Start(ctx, "eth.gas_price")
	defer span.End()

	if price, found := r.gasCache.Get(ctx, "current"); found {
		span.AddEvent("cache_hit")
		return price, nil
	}

	client, err := r.begin(ctx, "eth_gasPrice")
	if err != nil {
		r.fail(ctx, span, "eth_gasPrice", err)
		return nil, err
	}

	wei, err := client.SuggestGasPrice(ctx)
	if err != nil {
		r.fail(ctx, span, "eth_gasPrice", err)
		return nil, apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithCause(err),
			apperror.WithContext("failed to get gas price"))
	}

	if r.config.MaxGasPrice != nil && wei.Cmp(r.config.MaxGasPrice) > 0 {
		r.logger.Warn(ctx, "gas price exceeds max", "wei", wei.String())
		wei = r.config.MaxGasPrice
	}

	price := domain.NewGasPrice(wei)
	r.gasCache.Set(ctx, "current", price, r.config.GasPriceTTL)

	gwei, _ := price.Gwei().Float64()
	r.metrics.gasPriceGwei.Record(ctx, gwei)
	span.SetAttributes(attribute.Float64("gwei", gwei))

	return price, nil
}

// Ping checks that the endpoint answers.
func (r *Reader) Ping(ctx context.Context) error {
	_, err := r.HeaderByNumber(ctx, nil)
	return err
}

// Close closes the reader.
func (r *Reader) Close() error {
	r.clientMu.Lock()
	defer r.clientMu.Unlock()

	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
	r.gasCache.Close()
	return nil
}
