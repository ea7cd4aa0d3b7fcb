// Package health serves the liveness, readiness and component status endpoints.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/poolsync/internal/logger"
)

const defaultCheckTimeout = 2 * time.Second

// Status is the body of GET /health.
type Status struct {
	Status    string           `json:"status"`
	Checks    map[string]Check `json:"checks"`
	Version   string           `json:"version,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// Check is one component's result.
type Check struct {
	Healthy  bool   `json:"healthy"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
	// Readiness checks gate /ready and are reported by /health without degrading it.
	Readiness bool `json:"readiness,omitempty"`
}

// CheckFunc reports whether a component is healthy plus a short detail.
type CheckFunc func(ctx context.Context) (bool, string)

type registered struct {
	fn        CheckFunc
	readiness bool
}

// Server exposes /health, /ready and /live.
type Server struct {
	port         int
	version      string
	logger       logger.LoggerInterface
	checkTimeout time.Duration

	mu     sync.RWMutex
	checks map[string]registered
	server *http.Server
}

func NewServer(port int, version string, log logger.LoggerInterface) *Server {
	return &Server{
		port:         port,
		version:      version,
		logger:       log,
		checkTimeout: defaultCheckTimeout,
		checks:       make(map[string]registered),
	}
}

// SetCheckTimeout bounds each individual check. Non-positive values are ignored.
func (s *Server) SetCheckTimeout(d time.Duration) {
	if d > 0 {
		s.checkTimeout = d
	}
}

// RegisterCheck adds a dependency check. A failing check degrades /health and /ready.
func (s *Server) RegisterCheck(name string, check CheckFunc) {
	s.register(name, check, false)
}

// RegisterReadiness adds a check that only gates /ready, e.g. warm-up of tracked state.
func (s *Server) RegisterReadiness(name string, check CheckFunc) {
	s.register(name, check, true)
}

func (s *Server) register(name string, check CheckFunc, readiness bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = registered{fn: check, readiness: readiness}
}

// Handler returns the traced endpoint mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /live", s.handleLive)
	return otelhttp.NewHandler(mux, "health",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "health " + r.URL.Path
		}),
	)
}

// Start binds the port synchronously and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("health listen on %d: %w", s.port, err)
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(context.Background(), "health server failed", "port", s.port, "error", err)
		}
	}()

	s.logger.Info(context.Background(), "health server listening", "addr", ln.Addr().String())
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// evaluate runs every check concurrently, each under its own deadline.
func (s *Server) evaluate(ctx context.Context) map[string]Check {
	s.mu.RLock()
	snapshot := make(map[string]registered, len(s.checks))
	for name, c := range s.checks {
		snapshot[name] = c
	}
	s.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]Check, len(snapshot))
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, c := range snapshot {
		g.Go(func() error {
			res := s.runOne(gctx, c)
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Server) runOne(ctx context.Context, c registered) Check {
	ctx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	type outcome struct {
		ok  bool
		msg string
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		ok, msg := c.fn(ctx)
		done <- outcome{ok, msg}
	}()

	res := Check{Readiness: c.readiness}
	select {
	case o := <-done:
		res.Healthy, res.Message = o.ok, o.msg
	case <-ctx.Done():
		res.Message = "check timed out"
	}
	res.Duration = time.Since(start).Round(time.Millisecond).String()
	return res
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := s.evaluate(r.Context())

	status := Status{
		Status:    "ok",
		Checks:    checks,
		Version:   s.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	for _, c := range checks {
		if !c.Healthy && !c.Readiness {
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	for name, c := range s.evaluate(r.Context()) {
		if !c.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "not ready: %s", name)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
