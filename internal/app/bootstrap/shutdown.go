// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops background work, flushes open views and tears down the
// Redis and MongoDB clients. Views are closed before Redis so pending
// autosaves still have a target.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if rt := deps.rt; rt != nil {
		if rt.cleanup != nil {
			rt.cleanup.Stop()
		}
		if rt.views != nil {
			logger.Info("closing open session views", zap.Int("count", rt.views.Len()))
			rt.views.Close()
		}
		if rt.jobs != nil {
			rt.jobs.Wait()
		}
		if rt.catalog != nil {
			rt.catalog.Close()
		}
	}

	if deps.Redis != nil {
		logger.Info("closing Redis client")
		if err := deps.Redis.Close(); err != nil {
			logger.Warn("Redis close failed", zap.Error(err))
		}
	}
	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
