package apm

import (
	"context"
	"strings"
	"testing"

	"github.com/fd1az/poolsync/internal/logger"
)

func TestNewTraceProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty", Config{Provider: EmptyProvider}, false},
		{"unset", Config{}, false},
		{"console", Config{Provider: ConsoleProvider, ServiceName: "poolsync"}, false},
		{"zipkin", Config{Provider: ZipkinProvider, Endpoint: "http://localhost:9411/api/v2/spans"}, false},
		{"unknown", Config{Provider: "jaeger"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp, err := NewTraceProvider(context.Background(), tt.cfg, logger.NewNop())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tp != nil {
				if err := tp.Stop(); err != nil {
					t.Errorf("Stop: %v", err)
				}
			}
		})
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := sampler(tt.ratio).Description(); !strings.HasPrefix(got, tt.want) {
			t.Errorf("sampler(%v) = %s, want %s", tt.ratio, got, tt.want)
		}
	}
}
