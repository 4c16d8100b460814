package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// PoolConfig tunes the connection pool opened by [Connect].
type PoolConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
	ConnectRetries  int
}

const initialBackoff = 500 * time.Millisecond

// Connect opens a pool and pings it, retrying with exponential backoff.
func Connect(ctx context.Context, cfg PoolConfig, logger logrus.FieldLogger) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("database url required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = 1
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		pool, err := open(ctx, poolConfig, cfg.ConnectTimeout)
		if err == nil {
			logger.WithFields(logrus.Fields{
				"attempt":   attempt,
				"max_conns": poolConfig.MaxConns,
			}).Info("connected to database")
			return pool, nil
		}
		if attempt >= cfg.ConnectRetries {
			return nil, fmt.Errorf("connect database after %d attempts: %w", attempt, err)
		}

		logger.WithError(err).Warnf("database connect attempt %d/%d failed, retrying in %v", attempt, cfg.ConnectRetries, backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func open(ctx context.Context, cfg *pgxpool.Config, timeout time.Duration) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
