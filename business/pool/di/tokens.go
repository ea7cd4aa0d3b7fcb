// Package di contains dependency injection tokens for the pool context.
package di

import (
	"github.com/fd1az/poolsync/business/pool/app"
	"github.com/fd1az/poolsync/internal/asset"
	"github.com/fd1az/poolsync/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Registry     = di.NewToken[*app.Registry]("pool.Registry")
	QuoteService = di.NewToken[*app.QuoteService]("pool.QuoteService")
)

// Private dependency tokens - internal to pool module
var (
	Assets = di.NewToken[*asset.Registry]("pool:assets")
)

func GetRegistry(c di.ServiceRegistry) *app.Registry {
	return di.GetToken(c, Registry)
}

func GetQuoteService(c di.ServiceRegistry) *app.QuoteService {
	return di.GetToken(c, QuoteService)
}

func GetAssets(c di.ServiceRegistry) *asset.Registry {
	return di.GetToken(c, Assets)
}
