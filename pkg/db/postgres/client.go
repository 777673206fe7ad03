package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/canopy-network/payoutx/pkg/retry"
	"github.com/canopy-network/payoutx/pkg/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Client wraps a PostgreSQL connection pool and provides helper methods
type Client struct {
	Logger *zap.Logger
	Pool   *pgxpool.Pool
}

// PoolConfig defines connection pool settings for a specific component
type PoolConfig struct {
	MinConns        int32
	MaxConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Component       string // For logging/debugging
}

// New connects to dbURL (POSTGRES_URL when empty) and pings it, retrying with backoff.
func New(ctx context.Context, logger *zap.Logger, dbURL string, poolConfig *PoolConfig) (client Client, err error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if logger == nil {
		logger = zap.NewNop()
	}
	client.Logger = logger

	if dbURL == "" {
		dbURL = utils.Env("POSTGRES_URL", "postgres://localhost:5432/postgres")
	}
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return Client{}, fmt.Errorf("failed to parse postgres url: %w", err)
	}

	poolConf := poolConfig
	if poolConf == nil {
		poolConf = GetPoolConfigForComponent("")
	}
	config.MinConns = poolConf.MinConns
	config.MaxConns = poolConf.MaxConns
	config.MaxConnLifetime = poolConf.ConnMaxLifetime
	config.MaxConnIdleTime = poolConf.ConnMaxIdleTime

	retryErr := retry.WithBackoff(connCtx, retry.DefaultConfig(), logger, "postgres_connection", func() error {
		pool, openErr := pgxpool.NewWithConfig(connCtx, config)
		if openErr != nil {
			return fmt.Errorf("failed to create postgres connection pool: %w", openErr)
		}

		if pingErr := pool.Ping(connCtx); pingErr != nil {
			pool.Close()
			return fmt.Errorf("failed to ping postgres: %w", pingErr)
		}
		client.Pool = pool

		logger.Info("PostgreSQL connection pool configured",
			zap.String("database", config.ConnConfig.Database),
			zap.String("component", poolConf.Component),
			zap.Int32("min_conns", poolConf.MinConns),
			zap.Int32("max_conns", poolConf.MaxConns),
			zap.Duration("conn_max_lifetime", poolConf.ConnMaxLifetime),
			zap.Duration("conn_max_idle_time", poolConf.ConnMaxIdleTime),
		)
		return nil
	})
	if retryErr != nil {
		return Client{}, retryErr
	}

	return client, nil
}

// Exec executes a query without returning any rows
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := c.Pool.Exec(ctx, query, args...)
	return err
}

// Query executes a query that returns rows
// IMPORTANT: Caller MUST call rows.Close() when done to release the connection
func (c *Client) Query(ctx context.Context, query string, args ...interface{}) (pgx.Rows, error) {
	return c.Pool.Query(ctx, query, args...)
}

// QueryRow executes a query that is expected to return at most one row
func (c *Client) QueryRow(ctx context.Context, query string, args ...interface{}) pgx.Row {
	return c.Pool.QueryRow(ctx, query, args...)
}

// BeginFunc executes a function within a transaction
// If the function returns an error, the transaction is rolled back
// Otherwise, the transaction is committed
func (c *Client) BeginFunc(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, c.Pool, fn)
}

// Close closes the connection pool
func (c *Client) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// IsNoRows checks if the error is a "no rows" error
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// GetPoolConfigForComponent returns deterministic pool settings for each component
func GetPoolConfigForComponent(component string) *PoolConfig {
	var minConns, maxConns int32
	connMaxLifetime := 5 * time.Minute
	connMaxIdleTime := 2 * time.Minute

	switch component {
	case "indexer":
		minConns = 2
		maxConns = 20
	case "query":
		minConns = 2
		maxConns = 30
	case "replay":
		minConns = 1
		maxConns = 4
	default:
		minConns = 2
		maxConns = 20
	}

	return &PoolConfig{
		MinConns:        minConns,
		MaxConns:        maxConns,
		ConnMaxLifetime: connMaxLifetime,
		ConnMaxIdleTime: connMaxIdleTime,
		Component:       component,
	}
}
