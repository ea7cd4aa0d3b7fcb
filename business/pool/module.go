// Package pool implements the pool bounded context: tracked constant-product
// pairs and quotes over their synchronized reserves.
package pool

import (
	"context"
	"fmt"

	blockchainDI "github.com/fd1az/poolsync/business/blockchain/di"
	"github.com/fd1az/poolsync/business/pool/app"
	poolDI "github.com/fd1az/poolsync/business/pool/di"
	"github.com/fd1az/poolsync/business/pool/infra/uniswapv2"
	statesyncDI "github.com/fd1az/poolsync/business/statesync/di"
	statesyncDomain "github.com/fd1az/poolsync/business/statesync/domain"
	"github.com/fd1az/poolsync/internal/asset"
	"github.com/fd1az/poolsync/internal/config"
	"github.com/fd1az/poolsync/internal/di"
	"github.com/fd1az/poolsync/internal/logger"
	"github.com/fd1az/poolsync/internal/monolith"
)

// Module implements the pool bounded context.
type Module struct{}

func (m *Module) Name() string { return "pool" }

// RegisterServices registers the pool services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, poolDI.Assets, func(sr di.ServiceRegistry) *asset.Registry {
		chain := blockchainDI.GetBlockchainService(sr)
		return asset.DefaultRegistry(uniswapv2.TokenLookup(chain))
	})

	di.RegisterToken(c, poolDI.Registry, func(sr di.ServiceRegistry) *app.Registry {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		return app.NewRegistry(app.RegistryConfig{
			Namespace:        cfg.Pool.Namespace,
			HistoryWindow:    cfg.Sync.HistoryWindow,
			NeedsSharedState: cfg.Sync.NeedsSharedState,
		},
			statesyncDI.GetEnvironment(sr),
			uniswapv2.Factory(blockchainDI.GetBlockchainService(sr)),
			poolDI.GetAssets(sr),
			log,
		)
	})

	di.RegisterToken(c, poolDI.QuoteService, func(sr di.ServiceRegistry) *app.QuoteService {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		quoteCfg := app.DefaultQuoteConfig()
		quoteCfg.FeeBps = cfg.Pool.FeeBps
		quoteCfg.SwapGas = cfg.Pool.SwapGas
		svc, err := app.NewQuoteService(quoteCfg,
			poolDI.GetRegistry(sr),
			blockchainDI.GetBlockchainService(sr),
			log,
		)
		if err != nil {
			panic("failed to create quote service: " + err.Error())
		}
		return svc
	})

	return nil
}

// Startup tracks the configured pairs and gates readiness on their state. A
// primary also serves replica requests for pairs it does not track yet.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()

	registry := poolDI.GetRegistry(mono.Services())

	startBlock := cfg.Sync.StartBlock
	if startBlock == 0 {
		head, err := blockchainDI.GetBlockchainService(mono.Services()).LatestBlock(ctx)
		if err != nil {
			return fmt.Errorf("read chain head: %w", err)
		}
		startBlock = head.Number
	}

	if err := registry.TrackAll(ctx, cfg.Pool.PairAddresses(), startBlock); err != nil {
		log.Warn(ctx, "some pairs could not be tracked", "error", err)
	}

	if cfg.Sync.ParsedRole() == statesyncDomain.RolePrimary {
		syncer := statesyncDI.GetSyncer(mono.Services())
		if err := syncer.ListenNewObjects(ctx, cfg.Sync.NewObjectChannel, registry.HandleNewObject); err != nil {
			return fmt.Errorf("listen for new object requests: %w", err)
		}
	}

	if hs := mono.Health(); hs != nil {
		hs.RegisterReadiness("pairs", func(context.Context) (bool, string) {
			synced, total := registry.Ready()
			return total > 0 && synced == total, fmt.Sprintf("%d/%d pairs synced", synced, total)
		})
	}

	log.Info(ctx, "pool module started",
		"namespace", cfg.Pool.Namespace,
		"pairs", registry.Len(),
		"start_block", startBlock,
	)
	return nil
}
