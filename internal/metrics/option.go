package metrics

import "time"

// ReaderKind selects how metrics leave the process.
type ReaderKind string

const (
	PrometheusReader ReaderKind = "prometheus"
	OTLPReader       ReaderKind = "otlp-grpc"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	Readers        []ReaderConfig
	// LatencyBuckets overrides the boundaries of every *_ms histogram.
	LatencyBuckets []float64
}

type ReaderConfig struct {
	Kind     ReaderKind
	Endpoint string
	Headers  map[string]string
	Insecure bool
	// Interval is the OTLP push period; zero keeps the SDK default.
	Interval time.Duration
}

type Option func(*Config)

func WithService(name, version string) Option {
	return func(c *Config) {
		c.ServiceName = name
		c.ServiceVersion = version
	}
}

// WithPrometheus registers the scrape exporter on the default Prometheus registry.
func WithPrometheus() Option {
	return func(c *Config) {
		c.Readers = append(c.Readers, ReaderConfig{Kind: PrometheusReader})
	}
}

// WithOTLP pushes to a gRPC collector alongside any other reader.
func WithOTLP(endpoint string, insecure bool, interval time.Duration) Option {
	return func(c *Config) {
		c.Readers = append(c.Readers, ReaderConfig{
			Kind:     OTLPReader,
			Endpoint: endpoint,
			Insecure: insecure,
			Interval: interval,
		})
	}
}

func WithReader(r ReaderConfig) Option {
	return func(c *Config) {
		c.Readers = append(c.Readers, r)
	}
}

func WithLatencyBuckets(bounds ...float64) Option {
	return func(c *Config) {
		c.LatencyBuckets = bounds
	}
}

// defaultLatencyBuckets covers local cache hits through slow archive RPC calls, in ms.
var defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
