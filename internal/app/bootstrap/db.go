// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	draftstore "github.com/dalemusser/mindpath/internal/app/store/drafts"
	"github.com/dalemusser/mindpath/internal/app/system/indexes"
	"github.com/dalemusser/mindpath/internal/app/system/timeouts"
	"github.com/dalemusser/mindpath/internal/app/system/validators"
	"github.com/dalemusser/mindpath/internal/domain/programs"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB loads the program definitions and connects MongoDB and, when
// configured, Redis.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	reg, err := loadPrograms(appCfg, logger)
	if err != nil {
		return DBDeps{}, err
	}

	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)

	connCtx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()

	client, err := mongo.Connect(connCtx, opts)
	if err != nil {
		logger.Error("MongoDB connect failed", zap.Error(err))
		return DBDeps{}, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		logger.Error("MongoDB ping failed", zap.Error(err))
		return DBDeps{}, fmt.Errorf("mongo ping: %w", err)
	}
	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))

	deps := DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
		Programs:      reg,
		rt:            &runtime{},
	}

	if appCfg.RedisAddr == "" {
		logger.Warn("redis_addr is blank; autosaved drafts are disabled")
		return deps, nil
	}
	rdb, err := draftstore.Connect(connCtx, appCfg.RedisAddr, appCfg.RedisPassword, appCfg.RedisDB)
	if err != nil {
		_ = client.Disconnect(ctx)
		logger.Error("Redis connect failed", zap.String("addr", appCfg.RedisAddr), zap.Error(err))
		return DBDeps{}, err
	}
	deps.Redis = rdb
	logger.Info("connected to Redis", zap.String("addr", appCfg.RedisAddr), zap.Int("db", appCfg.RedisDB))
	return deps, nil
}

func loadPrograms(appCfg AppConfig, logger *zap.Logger) (*programs.Registry, error) {
	if appCfg.ProgramsDir != "" {
		reg, err := programs.LoadDir(appCfg.ProgramsDir)
		if err != nil {
			return nil, fmt.Errorf("load programs from %s: %w", appCfg.ProgramsDir, err)
		}
		logger.Info("loaded program definitions", zap.String("dir", appCfg.ProgramsDir), zap.Int("count", len(reg.All())))
		return reg, nil
	}
	reg, err := programs.Load()
	if err != nil {
		return nil, fmt.Errorf("load built-in programs: %w", err)
	}
	return reg, nil
}

// EnsureSchema applies collection validators and indexes for the shared
// collections and every program's progress and submission collections.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Long())
	defer cancel()

	if err := validators.EnsureAll(ctx, deps.MongoDatabase, deps.Programs); err != nil {
		logger.Error("ensure validators failed", zap.Error(err))
		return err
	}
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase, deps.Programs); err != nil {
		logger.Error("ensure indexes failed", zap.Error(err))
		return err
	}
	return nil
}
