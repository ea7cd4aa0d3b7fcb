// Package httpclient builds the instrumented HTTP transport used for JSON-RPC.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultRequestTimeout  = 10 * time.Second
	defaultMaxConnsPerHost = 32

	meterName            = "httpclient"
	metricRequestCounter = "http_client_requests_total"
	metricRequestLatency = "http_client_request_duration_ms"
)

// New returns a client whose requests are traced by otelhttp, carry the
// configured default headers, and are counted per provider and status.
func New(opts ...Option) (*http.Client, error) {
	s := newSettings(opts)

	base := s.base
	if base == nil {
		base = pooledTransport(s.maxConnsPerHost)
	}

	meter := s.meterProvider.Meter(meterName)
	counter, err := meter.Int64Counter(metricRequestCounter,
		metric.WithDescription("Outbound HTTP requests"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(metricRequestLatency,
		metric.WithDescription("Outbound HTTP request latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	provider := s.provider
	traced := otelhttp.NewTransport(base,
		otelhttp.WithMeterProvider(s.meterProvider),
		otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
			return otelhttptrace.NewClientTrace(ctx)
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return provider + " " + r.Method
		}),
	)

	return &http.Client{
		Timeout: s.timeout,
		Transport: &rpcTransport{
			next:     traced,
			provider: attribute.String("provider", provider),
			headers:  s.headers,
			requests: counter,
			latency:  latency,
		},
	}, nil
}

func pooledTransport(maxConns int) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   maxConns / 2,
		MaxConnsPerHost:       maxConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// rpcTransport applies default headers and records one sample per request,
// labelled with the status code or "error" when no response arrived.
type rpcTransport struct {
	next     http.RoundTripper
	provider attribute.KeyValue
	headers  map[string]string
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

func (t *rpcTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) > 0 {
		req = req.Clone(req.Context())
		for k, v := range t.headers {
			if req.Header.Get(k) == "" {
				req.Header.Set(k, v)
			}
		}
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	attrs := metric.WithAttributes(t.provider,
		attribute.String("method", req.Method),
		attribute.String("status", status),
	)
	t.requests.Add(req.Context(), 1, attrs)
	t.latency.Record(req.Context(), elapsed, attrs)

	return resp, err
}
