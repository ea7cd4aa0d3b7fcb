// Package di contains dependency injection tokens for the statesync context.
package di

import (
	"github.com/fd1az/poolsync/business/statesync/app"
	"github.com/fd1az/poolsync/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Environment = di.NewToken[app.Environment]("statesync.Environment")
	Syncer      = di.NewToken[*app.Syncer]("statesync.Syncer")
)

// Private dependency tokens - internal to statesync module
var (
	Metrics     = di.NewToken[*app.Metrics]("statesync:metrics")
	SharedCache = di.NewToken[app.SharedCache]("statesync:sharedCache")
	CacheWriter = di.NewToken[*app.CacheWriter]("statesync:cacheWriter")
)

func GetEnvironment(c di.ServiceRegistry) app.Environment {
	return di.GetToken(c, Environment)
}

func GetSyncer(c di.ServiceRegistry) *app.Syncer {
	return di.GetToken(c, Syncer)
}

func GetMetrics(c di.ServiceRegistry) *app.Metrics {
	return di.GetToken(c, Metrics)
}

func GetSharedCache(c di.ServiceRegistry) app.SharedCache {
	return di.GetToken(c, SharedCache)
}

func GetCacheWriter(c di.ServiceRegistry) *app.CacheWriter {
	return di.GetToken(c, CacheWriter)
}
