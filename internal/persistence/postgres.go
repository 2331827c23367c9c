package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/deadline-engine/internal/config"
	"github.com/spec-kit/deadline-engine/internal/repository"
	"github.com/spec-kit/deadline-engine/internal/repository/memstore"
)

// Postgres wraps access to a pgx connection pool.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres establishes a connection pool when DSN is provided.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	if cfg.DSN == "" {
		logger.Warn("POSTGRES_DSN not provided; using the in-memory store")
		return &Postgres{Pool: nil}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse POSTGRES_DSN: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxIdleSec > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleSec) * time.Second
	}
	if cfg.ConnMaxLifeSec > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifeSec) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to postgres")
	return &Postgres{Pool: pool}, nil
}

// Close releases pool resources.
func (p *Postgres) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// Ping verifies connectivity. Without a pool there is nothing to reach.
func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return nil
	}
	return p.Pool.Ping(ctx)
}

// Store returns the repositories over the pool, or an in-memory store when
// no database is configured.
func (p *Postgres) Store() *repository.Store {
	if p == nil || p.Pool == nil {
		return memstore.New().Repositories()
	}
	return repository.NewPostgresStore(p.Pool)
}

// Open connects, migrates when asked to, and returns the store.
func Open(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Postgres, *repository.Store, error) {
	pg, err := NewPostgres(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RunMigrations {
		if err := RunMigrations(ctx, pg.Pool, logger); err != nil {
			pg.Close()
			return nil, nil, err
		}
	}
	return pg, pg.Store(), nil
}
