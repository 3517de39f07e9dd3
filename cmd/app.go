package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"metal-catalog-service/internal/config"
	"metal-catalog-service/internal/database"
	"metal-catalog-service/internal/logger"
	"metal-catalog-service/internal/recount"
	"metal-catalog-service/internal/store"
)

// app bundles what every command needs: configuration, a logger and the database.
type app struct {
	cfg   *config.Config
	log   *zap.SugaredLogger
	db    *sql.DB
	store *store.PostgresStore
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log.Infow("configuration loaded", "app_env", cfg.AppEnv, "log_level", cfg.LogLevel)

	db, err := database.Connect(ctx, cfg.Postgres.DSN(), database.PoolSettings{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		logger.Sync(log)
		return nil, err
	}
	log.Infow("database connection established", "host", cfg.Postgres.Host, "db", cfg.Postgres.DBName)

	return &app{cfg: cfg, log: log, db: db, store: store.NewPostgresStore(db)}, nil
}

func (a *app) aggregator() *recount.Aggregator {
	return recount.NewAggregator(a.store, a.store, a.log.Named("recount"),
		recount.WithInactiveProducts(a.cfg.Recount.IncludeInactive))
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warnw("error closing database connection", "error", err)
	}
	logger.Sync(a.log)
}
