package httpclient

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type settings struct {
	provider        string
	meterProvider   metric.MeterProvider
	base            http.RoundTripper
	timeout         time.Duration
	maxConnsPerHost int
	headers         map[string]string
}

func newSettings(opts []Option) settings {
	s := settings{
		provider:        "default",
		timeout:         defaultRequestTimeout,
		maxConnsPerHost: defaultMaxConnsPerHost,
	}
	for _, o := range opts {
		o(&s)
	}
	if s.meterProvider == nil {
		s.meterProvider = otel.GetMeterProvider()
	}
	return s
}

// Option configures New.
type Option func(*settings)

// WithProvider names the upstream, e.g. "eth-rpc", in span names and metric attributes.
func WithProvider(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.provider = name
		}
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *settings) { s.meterProvider = mp }
}

// WithTransport replaces the pooled base transport. Tracing and counting still wrap it.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *settings) { s.base = rt }
}

// WithTimeout bounds a whole JSON-RPC round trip. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxConnsPerHost caps concurrent connections to one RPC node. Batched
// log backfills otherwise open one per in-flight request.
func WithMaxConnsPerHost(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxConnsPerHost = n
		}
	}
}

// WithHeaders sets headers added to every request that does not carry them,
// for providers that authenticate by header.
func WithHeaders(headers map[string]string) Option {
	return func(s *settings) { s.headers = headers }
}
