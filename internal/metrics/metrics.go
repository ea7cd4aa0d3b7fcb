// Package metrics configures the OpenTelemetry meter provider and serves
// Prometheus scrapes.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/fd1az/poolsync/internal/logger"
)

type MetricProvider interface {
	Meter(name string, options ...metric.MeterOption) metric.Meter
	Shutdown(ctx context.Context) error
}

func readers(ctx context.Context, cfg Config) ([]sdkmetric.Reader, error) {
	out := make([]sdkmetric.Reader, 0, len(cfg.Readers))

	for _, rc := range cfg.Readers {
		switch rc.Kind {
		case PrometheusReader:
			exp, err := prometheus.New()
			if err != nil {
				return nil, fmt.Errorf("prometheus exporter: %w", err)
			}
			out = append(out, exp)

		case OTLPReader:
			opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpointURL(rc.Endpoint)}
			if len(rc.Headers) > 0 {
				opts = append(opts, otlpmetricgrpc.WithHeaders(rc.Headers))
			}
			if rc.Insecure {
				opts = append(opts, otlpmetricgrpc.WithInsecure())
			}
			exp, err := otlpmetricgrpc.New(ctx, opts...)
			if err != nil {
				return nil, fmt.Errorf("otlp metric exporter: %w", err)
			}
			var periodic []sdkmetric.PeriodicReaderOption
			if rc.Interval > 0 {
				periodic = append(periodic, sdkmetric.WithInterval(rc.Interval))
			}
			out = append(out, sdkmetric.NewPeriodicReader(exp, periodic...))

		default:
			return nil, fmt.Errorf("unknown metric reader %q", rc.Kind)
		}
	}

	return out, nil
}

// latencyView rebuckets every millisecond histogram so RPC, cache and
// reconcile latencies share comparable boundaries.
func latencyView(bounds []float64) sdkmetric.View {
	if len(bounds) == 0 {
		bounds = defaultLatencyBuckets
	}
	return sdkmetric.NewView(
		sdkmetric.Instrument{Name: "*_ms", Kind: sdkmetric.InstrumentKindHistogram},
		sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: bounds}},
	)
}

// NewMetricProvider installs a global meter provider with the configured
// readers. Instruments created before this call are rebound by the otel
// global delegate.
func NewMetricProvider(ctx context.Context, options ...Option) (MetricProvider, error) {
	var cfg Config
	for _, opt := range options {
		opt(&cfg)
	}
	if len(cfg.Readers) == 0 {
		return nil, errors.New("no metric reader configured")
	}

	rs, err := readers(ctx, cfg)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(cfg.ServiceVersion))
	}
	metricsOps := []sdkmetric.Option{
		sdkmetric.WithResource(resource.NewSchemaless(attrs...)),
		sdkmetric.WithView(latencyView(cfg.LatencyBuckets)),
	}
	for _, r := range rs {
		metricsOps = append(metricsOps, sdkmetric.WithReader(r))
	}

	meterProvider := sdkmetric.NewMeterProvider(metricsOps...)
	otel.SetMeterProvider(meterProvider)

	return meterProvider, nil
}

// PrometheusServer serves /metrics from the default Prometheus registry.
type PrometheusServer struct {
	server *http.Server
	logger logger.LoggerInterface
}

// NewPrometheusServer creates a scrape server on port.
func NewPrometheusServer(port int, log logger.LoggerInterface) *PrometheusServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &PrometheusServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		logger: log,
	}
}

// Handler exposes the scrape handler.
func (s *PrometheusServer) Handler() http.Handler {
	return s.server.Handler
}

// Start binds the port and serves in the background.
func (s *PrometheusServer) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(context.Background(), "prometheus server stopped", "error", err)
		}
	}()

	s.logger.Info(context.Background(), "prometheus metrics server started", "addr", s.server.Addr)
	return nil
}

// Stop shuts the server down.
func (s *PrometheusServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
