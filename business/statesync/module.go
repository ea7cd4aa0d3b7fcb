// Package statesync implements the state synchronization bounded context.
package statesync

import (
	"context"
	"time"

	blockchainDI "github.com/fd1az/poolsync/business/blockchain/di"
	"github.com/fd1az/poolsync/business/statesync/app"
	statesyncDI "github.com/fd1az/poolsync/business/statesync/di"
	"github.com/fd1az/poolsync/business/statesync/domain"
	"github.com/fd1az/poolsync/business/statesync/infra/memcache"
	"github.com/fd1az/poolsync/business/statesync/infra/rediscache"
	"github.com/fd1az/poolsync/internal/config"
	"github.com/fd1az/poolsync/internal/di"
	"github.com/fd1az/poolsync/internal/logger"
	"github.com/fd1az/poolsync/internal/monolith"
)

const redisConnectTimeout = 10 * time.Second

// Module implements the statesync bounded context.
type Module struct{}

func (m *Module) Name() string { return "statesync" }

// RegisterServices registers the engine's shared wiring with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, statesyncDI.Metrics, func(sr di.ServiceRegistry) *app.Metrics {
		metrics, err := app.NewMetrics()
		if err != nil {
			panic("failed to create statesync metrics: " + err.Error())
		}
		return metrics
	})

	di.RegisterToken(c, statesyncDI.SharedCache, func(sr di.ServiceRegistry) app.SharedCache {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if cfg.Sync.CacheBackend != "redis" {
			return memcache.New(0)
		}

		redisCfg := rediscache.DefaultConfig()
		redisCfg.Addr = cfg.Redis.Addr
		redisCfg.Username = cfg.Redis.Username
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.KeyPrefix = cfg.Redis.KeyPrefix

		ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
		defer cancel()
		cache, err := rediscache.New(ctx, redisCfg, log)
		if err != nil {
			panic("failed to connect shared cache: " + err.Error())
		}
		return cache
	})

	di.RegisterToken(c, statesyncDI.CacheWriter, func(sr di.ServiceRegistry) *app.CacheWriter {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		writerCfg := app.DefaultCacheWriterConfig()
		if cfg.Sync.WriteQueueSize > 0 {
			writerCfg.QueueSize = cfg.Sync.WriteQueueSize
		}
		if cfg.Sync.WriteWorkers > 0 {
			writerCfg.Workers = cfg.Sync.WriteWorkers
		}
		if cfg.Sync.WriteTimeout > 0 {
			writerCfg.WriteTimeout = cfg.Sync.WriteTimeout
		}
		return app.NewCacheWriter(writerCfg,
			statesyncDI.GetSharedCache(sr),
			log,
			statesyncDI.GetMetrics(sr),
		)
	})

	di.RegisterToken(c, statesyncDI.Syncer, func(sr di.ServiceRegistry) *app.Syncer {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		syncCfg := app.DefaultSyncerConfig()
		if cfg.Sync.RestartLag > 0 {
			syncCfg.RestartLag = cfg.Sync.RestartLag
		}
		if cfg.Sync.MaxReorgDepth > 0 {
			syncCfg.MaxReorgDepth = cfg.Sync.MaxReorgDepth
		}
		syncCfg.MarkerKey = cfg.Sync.MarkerKey
		syncCfg.PublishMarker = cfg.Sync.ParsedRole() == domain.RolePrimary

		return app.NewSyncer(syncCfg,
			blockchainDI.GetBlockchainService(sr),
			statesyncDI.GetSharedCache(sr),
			log,
			statesyncDI.GetMetrics(sr),
		)
	})

	di.RegisterToken(c, statesyncDI.Environment, func(sr di.ServiceRegistry) app.Environment {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		return app.Environment{
			Role:             cfg.Sync.ParsedRole(),
			Cache:            statesyncDI.GetSharedCache(sr),
			Writer:           statesyncDI.GetCacheWriter(sr),
			Logs:             statesyncDI.GetSyncer(sr),
			Logger:           log,
			Metrics:          statesyncDI.GetMetrics(sr),
			MarkerKey:        cfg.Sync.MarkerKey,
			NewObjectChannel: cfg.Sync.NewObjectChannel,
		}
	})

	return nil
}

// Startup starts the write-back workers and registers the cache health check.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()

	cache := statesyncDI.GetSharedCache(mono.Services())
	writer := statesyncDI.GetCacheWriter(mono.Services())
	writer.Start(ctx)

	if pinger, ok := cache.(interface{ Ping(context.Context) error }); ok {
		if hs := mono.Health(); hs != nil {
			hs.RegisterCheck("shared_cache", func(ctx context.Context) (bool, string) {
				if err := pinger.Ping(ctx); err != nil {
					return false, err.Error()
				}
				return true, "ok"
			})
		}
	}

	mono.OnClose(func() error {
		writer.Close()
		switch c := cache.(type) {
		case *rediscache.Cache:
			return c.Close()
		case *memcache.Cache:
			c.Close()
		}
		return nil
	})

	log.Info(ctx, "statesync module started",
		"role", cfg.Sync.Role,
		"cache_backend", cfg.Sync.CacheBackend,
		"history_window", cfg.Sync.HistoryWindow,
	)
	return nil
}
