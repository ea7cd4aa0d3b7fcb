// Package blockchain implements the blockchain bounded context for Ethereum integration.
package blockchain

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fd1az/poolsync/business/blockchain/app"
	blockchainDI "github.com/fd1az/poolsync/business/blockchain/di"
	"github.com/fd1az/poolsync/business/blockchain/domain"
	"github.com/fd1az/poolsync/business/blockchain/infra/ethereum"
	"github.com/fd1az/poolsync/internal/config"
	"github.com/fd1az/poolsync/internal/di"
	"github.com/fd1az/poolsync/internal/httpclient"
	"github.com/fd1az/poolsync/internal/logger"
	"github.com/fd1az/poolsync/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct{}

func (m *Module) Name() string { return "blockchain" }

// RegisterServices registers all blockchain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, blockchainDI.RPCClient, func(sr di.ServiceRegistry) *http.Client {
		cfg := sr.Get("config").(*config.Config)

		hc, err := httpclient.New(
			httpclient.WithProvider("eth-rpc"),
			httpclient.WithHeaders(cfg.Ethereum.RPCHeaders),
			httpclient.WithTimeout(cfg.Ethereum.RPCTimeout),
			httpclient.WithMaxConnsPerHost(cfg.Ethereum.Burst*2),
		)
		if err != nil {
			panic("failed to create rpc http client: " + err.Error())
		}
		return hc
	})

	di.RegisterToken(c, blockchainDI.BlockSubscriber, func(sr di.ServiceRegistry) app.BlockSubscriber {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		subCfg := ethereum.DefaultSubscriberConfig(cfg.Ethereum.WebSocketURL, cfg.Ethereum.HTTPURL)
		subCfg.HTTPClient = blockchainDI.GetRPCClient(sr)
		if cfg.Ethereum.PollInterval > 0 {
			subCfg.PollInterval = cfg.Ethereum.PollInterval
		}
		sub, err := ethereum.NewSubscriber(subCfg, log)
		if err != nil {
			panic("failed to create subscriber: " + err.Error())
		}
		return sub
	})

	di.RegisterToken(c, blockchainDI.ChainReader, func(sr di.ServiceRegistry) app.ChainReader {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		readerCfg := ethereum.DefaultReaderConfig(cfg.Ethereum.HTTPURL)
		readerCfg.RequestsPerSec = cfg.Ethereum.RequestsPerSec
		readerCfg.Burst = cfg.Ethereum.Burst
		readerCfg.HTTPClient = blockchainDI.GetRPCClient(sr)

		reader, err := ethereum.NewReader(readerCfg, log)
		if err != nil {
			panic("failed to create chain reader: " + err.Error())
		}
		return reader
	})

	di.RegisterToken(c, blockchainDI.BlockchainService, func(sr di.ServiceRegistry) *app.BlockchainService {
		cfg := sr.Get("config").(*config.Config)

		svcCfg := app.DefaultServiceConfig()
		svcCfg.MaxLogRange = cfg.Ethereum.MaxLogRange
		return app.NewBlockchainService(
			blockchainDI.GetBlockSubscriber(sr),
			blockchainDI.GetChainReader(sr),
			svcCfg,
		)
	})

	return nil
}

// Startup connects the chain reader and registers the chain health check.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	sub := blockchainDI.GetBlockSubscriber(mono.Services())
	reader := blockchainDI.GetChainReader(mono.Services())
	svc := blockchainDI.GetBlockchainService(mono.Services())

	if connector, ok := reader.(interface{ Connect(context.Context) error }); ok {
		if err := connector.Connect(ctx); err != nil {
			return fmt.Errorf("connect chain reader: %w", err)
		}
	}

	if hs := mono.Health(); hs != nil {
		hs.RegisterCheck("chain", func(ctx context.Context) (bool, string) {
			state := svc.ConnectionState()
			return state == domain.StateConnected, string(state)
		})
	}

	mono.OnClose(func() error {
		svc.Close()
		if c, ok := sub.(interface{ Close() error }); ok {
			_ = c.Close()
		}
		if c, ok := reader.(interface{ Close() error }); ok {
			return c.Close()
		}
		return nil
	})

	log.Info(ctx, "blockchain module started")
	return nil
}
