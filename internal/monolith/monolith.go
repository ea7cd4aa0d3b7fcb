// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/poolsync/internal/config"
	"github.com/fd1az/poolsync/internal/di"
	"github.com/fd1az/poolsync/internal/health"
	"github.com/fd1az/poolsync/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	Services() di.ServiceRegistry
	Health() *health.Server

	// OnClose registers fn to run on Close, in reverse registration order.
	OnClose(fn func() error)
}

// Module is a bounded context. Services are registered for every module
// before any module starts, so Startup may resolve tokens of its peers.
type Module interface {
	Name() string
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

type app struct {
	config    *config.Config
	logger    logger.LoggerInterface
	health    *health.Server
	container di.Container

	tracer trace.Tracer

	mu      sync.Mutex
	closers []func() error
}

// New creates a new Monolith instance.
func New(cfg *config.Config, log logger.LoggerInterface, hs *health.Server) *app {
	container := di.NewContainer()

	container.Register("config", cfg)
	container.Register("logger", log)

	return &app{
		config:    cfg,
		logger:    log,
		health:    hs,
		container: container,
		tracer:    otel.Tracer("monolith"),
	}
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

func (a *app) Health() *health.Server {
	return a.health
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

func (a *app) OnClose(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return fmt.Errorf("register %s: %w", m.Name(), err)
		}
	}
	return nil
}

// StartModules starts modules in order and stops at the first failure.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := a.start(ctx, m); err != nil {
			return fmt.Errorf("start %s: %w", m.Name(), err)
		}
	}
	return nil
}

func (a *app) start(ctx context.Context, m Module) error {
	ctx, span := a.tracer.Start(ctx, "module.startup",
		trace.WithAttributes(attribute.String("module", m.Name())))
	defer span.End()

	began := time.Now()
	if err := m.Startup(ctx, a); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "startup failed")
		return err
	}
	a.logger.Debug(ctx, "module started", "module", m.Name(), "took", time.Since(began))
	return nil
}

// Close runs the registered closers, last registered first.
func (a *app) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
