// Package ethereum provides Ethereum blockchain infrastructure adapters.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/poolsync/business/blockchain/app"
	"github.com/fd1az/poolsync/business/blockchain/domain"
	"github.com/fd1az/poolsync/internal/apperror"
	"github.com/fd1az/poolsync/internal/circuitbreaker"
	"github.com/fd1az/poolsync/internal/logger"
)

const (
	tracerName = "ethereum"
	meterName  = "ethereum"
)

var _ app.BlockSubscriber = (*Subscriber)(nil)

// SubscriberConfig holds configuration for the head subscriber.
type SubscriberConfig struct {
	WSURL          string        // WebSocket endpoint (primary)
	HTTPURL        string        // HTTP endpoint (fallback)
	PollInterval   time.Duration // Polling interval for HTTP fallback
	ReconnectDelay time.Duration // First delay before redialling; doubles per failure
	MaxReconnect   time.Duration // Cap on the redial delay
	WSRetryAfter   time.Duration // How long to poll over HTTP before retrying WS
	BufferSize     int           // Block channel buffer size

	// HTTPClient carries the HTTP fallback; nil uses the rpc default.
	HTTPClient *http.Client
}

// DefaultSubscriberConfig returns sensible defaults.
func DefaultSubscriberConfig(wsURL, httpURL string) SubscriberConfig {
	return SubscriberConfig{
		WSURL:          wsURL,
		HTTPURL:        httpURL,
		PollInterval:   4 * time.Second,
		ReconnectDelay: 2 * time.Second,
		MaxReconnect:   time.Minute,
		WSRetryAfter:   time.Minute,
		BufferSize:     16,
	}
}

type subscriberMetrics struct {
	blocksReceived   metric.Int64Counter
	blocksDropped    metric.Int64Counter
	subscribeErrors  metric.Int64Counter
	connectionState  metric.Int64Gauge
	httpFallbackUsed metric.Int64Counter
}

// Subscriber delivers chain heads over WebSocket, polling over HTTP while the
// WebSocket is unavailable. Heads are dropped when the consumer lags; the sync
// loop fetches whole block ranges, so a skipped head loses nothing.
type Subscriber struct {
	config SubscriberConfig
	logger logger.LoggerInterface

	state      atomic.Value // domain.ConnectionState
	usingHTTP  atomic.Bool
	head       atomic.Pointer[domain.Block]
	reconnects atomic.Int32

	// redial is only touched by the run goroutine.
	redial *backoff.ExponentialBackOff

	blocks    chan *domain.Block
	done      chan struct{}
	closeOnce sync.Once
	started   atomic.Bool

	httpCB *circuitbreaker.CircuitBreaker[*types.Header]

	tracer  trace.Tracer
	metrics *subscriberMetrics
}

// NewSubscriber creates a new head subscriber.
func NewSubscriber(cfg SubscriberConfig, log logger.LoggerInterface) (*Subscriber, error) {
	if cfg.WSURL == "" && cfg.HTTPURL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("subscriber needs a ws or http url"))
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	redial := backoff.NewExponentialBackOff()
	redial.Multiplier = 2
	if cfg.ReconnectDelay > 0 {
		redial.InitialInterval = cfg.ReconnectDelay
	}
	if cfg.MaxReconnect > 0 {
		redial.MaxInterval = cfg.MaxReconnect
	}

	s := &Subscriber{
		config: cfg,
		logger: log,
		blocks: make(chan *domain.Block, cfg.BufferSize),
		done:   make(chan struct{}),
		redial: redial,
		httpCB: circuitbreaker.New[*types.Header](circuitbreaker.DefaultConfig("eth-head-poll")),
		tracer: otel.Tracer(tracerName),
	}
	s.state.Store(domain.StateDisconnected)

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return s, nil
}

func (s *Subscriber) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &subscriberMetrics{}

	s.metrics.blocksReceived, err = meter.Int64Counter(
		"eth_blocks_received_total",
		metric.WithDescription("Total Ethereum heads received"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	s.metrics.blocksDropped, err = meter.Int64Counter(
		"eth_blocks_dropped_total",
		metric.WithDescription("Heads dropped because the consumer lagged"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	s.metrics.subscribeErrors, err = meter.Int64Counter(
		"eth_subscribe_errors_total",
		metric.WithDescription("Total Ethereum subscription errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	s.metrics.connectionState, err = meter.Int64Gauge(
		"eth_connection_state",
		metric.WithDescription("Connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return err
	}

	s.metrics.httpFallbackUsed, err = meter.Int64Counter(
		"eth_http_fallback_total",
		metric.WithDescription("Times HTTP polling replaced the WebSocket"),
		metric.WithUnit("{fallback}"),
	)
	return err
}

// Subscribe starts the head loop. It may be called once.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan *domain.Block, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, errors.New("subscriber already started")
	}

	s.setState(domain.StateConnecting)
	go s.run(ctx)
	return s.blocks, nil
}

// run alternates between the WebSocket stream and HTTP polling until closed.
func (s *Subscriber) run(ctx context.Context) {
	for {
		if s.stopped(ctx) {
			return
		}

		if s.config.WSURL != "" {
			err := s.streamWS(ctx)
			if s.stopped(ctx) {
				return
			}
			s.metrics.subscribeErrors.Add(ctx, 1)
			s.logger.Warn(ctx, "ws head stream ended", "error", err)
		}

		s.setState(domain.StateReconnecting)
		s.reconnects.Add(1)

		if s.config.HTTPURL == "" {
			s.sleep(ctx, s.redial.NextBackOff())
			continue
		}

		// Poll until it is time to retry the WebSocket.
		s.usingHTTP.Store(true)
		s.metrics.httpFallbackUsed.Add(ctx, 1)
		s.pollHTTP(ctx, s.config.WSRetryAfter)
		s.usingHTTP.Store(false)
	}
}

func (s *Subscriber) streamWS(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "eth.subscribe.ws",
		trace.WithAttributes(attribute.String("url", s.config.WSURL)),
	)
	defer span.End()

	client, err := ethclient.DialContext(ctx, s.config.WSURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return fmt.Errorf("dial ws: %w", err)
	}
	defer client.Close()

	headers := make(chan *types.Header, s.config.BufferSize)
	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "subscribe failed")
		return apperror.New(apperror.CodeEthereumSubscribeFailed, apperror.WithCause(err))
	}
	defer sub.Unsubscribe()

	s.connected()
	s.logger.Info(ctx, "subscribed to new heads via ws")

	for {
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case header := <-headers:
			if header != nil {
				s.emit(ctx, headerToBlock(header))
			}
		}
	}
}

// pollHTTP polls the latest head for d, or until closed when there is no
// WebSocket to return to.
func (s *Subscriber) pollHTTP(ctx context.Context, d time.Duration) {
	var opts []rpc.ClientOption
	if s.config.HTTPClient != nil {
		opts = append(opts, rpc.WithHTTPClient(s.config.HTTPClient))
	}
	rc, err := rpc.DialOptions(ctx, s.config.HTTPURL, opts...)
	if err != nil {
		s.logger.Error(ctx, "http fallback connection failed", "error", err)
		s.setState(domain.StateDisconnected)
		s.sleep(ctx, s.redial.NextBackOff())
		return
	}
	client := ethclient.NewClient(rc)
	defer client.Close()

	s.connected()
	s.logger.Info(ctx, "polling heads over http", "interval", s.config.PollInterval)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if d > 0 && s.config.WSURL != "" {
		timer := time.NewTimer(d)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
			header, err := s.httpCB.Execute(func() (*types.Header, error) {
				return client.HeaderByNumber(ctx, nil)
			})
			if err != nil {
				s.metrics.subscribeErrors.Add(ctx, 1)
				s.logger.Error(ctx, "http head poll failed", "error", err)
				continue
			}
			if b := headerToBlock(header); s.isNewHead(b) {
				s.emit(ctx, b)
			}
		}
	}
}

// isNewHead reports whether a polled head advances the chain or replaces the
// last head at the same or greater height. Same-height replacements are how
// a reorg shows up while polling.
func (s *Subscriber) isNewHead(b *domain.Block) bool {
	last := s.head.Load()
	if last == nil {
		return true
	}
	return b.Number > last.Number || (b.Number == last.Number && b.Hash != last.Hash)
}

func (s *Subscriber) connected() {
	s.redial.Reset()
	s.setState(domain.StateConnected)
}

// emit forwards a head without blocking.
func (s *Subscriber) emit(ctx context.Context, block *domain.Block) {
	s.head.Store(block)

	select {
	case s.blocks <- block:
		s.metrics.blocksReceived.Add(ctx, 1)
		s.logger.Debug(ctx, "block received", "number", block.Number, "hash", block.Hash.Hex())
	default:
		s.metrics.blocksDropped.Add(ctx, 1)
		s.logger.Warn(ctx, "block dropped, buffer full", "number", block.Number)
	}
}

func (s *Subscriber) stopped(ctx context.Context) bool {
	select {
	case <-s.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *Subscriber) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-s.done:
	case <-ctx.Done():
	}
}

// State returns the current connection state.
func (s *Subscriber) State() domain.ConnectionState {
	return s.state.Load().(domain.ConnectionState)
}

// Status returns detailed connection status.
func (s *Subscriber) Status() domain.ConnectionStatus {
	var last uint64
	if h := s.head.Load(); h != nil {
		last = h.Number
	}
	return domain.ConnectionStatus{
		State:      s.State(),
		LastBlock:  last,
		Reconnects: int(s.reconnects.Load()),
		UsingHTTP:  s.usingHTTP.Load(),
	}
}

// Close stops the head loop. The block channel is left open so a consumer
// selecting on it never sees a spurious zero value.
func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info(context.Background(), "closing ethereum subscriber")
		close(s.done)
		s.setState(domain.StateDisconnected)
	})
	return nil
}

func (s *Subscriber) setState(state domain.ConnectionState) {
	s.state.Store(state)
	s.metrics.connectionState.Record(context.Background(), state.Value())
}

func headerToBlock(header *types.Header) *domain.Block {
	return &domain.Block{
		Number:     header.Number.Uint64(),
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Timestamp:  time.Unix(int64(header.Time), 0),
		BaseFee:    header.BaseFee,
	}
}

// SortLogs orders logs by block number, then log index.
func SortLogs(logs []types.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}
