package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClientConfig holds configuration for the PostgreSQL client.
type ClientConfig struct {
	DSN      string
	MaxConns int32
	// ConnectTimeout bounds dialing and the startup ping.
	ConnectTimeout time.Duration
	// StatementTimeout is sent as statement_timeout so a locked snapshot row
	// fails a cache operation instead of stalling the request.
	StatementTimeout time.Duration
	ApplicationName  string
}

// DefaultClientConfig returns a small pool; the snapshot store issues one
// statement per cache operation.
func DefaultClientConfig(dsn string) ClientConfig {
	return ClientConfig{
		DSN:              dsn,
		MaxConns:         4,
		ConnectTimeout:   5 * time.Second,
		StatementTimeout: 5 * time.Second,
		ApplicationName:  "avatarrelay",
	}
}

// Client owns the pool behind the snapshot store.
type Client struct {
	pool *pgxpool.Pool
}

// NewClient opens the pool and pings it so a bad DSN fails at startup.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	poolConfig, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{pool: pool}, nil
}

func poolConfig(cfg ClientConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	params := pc.ConnConfig.RuntimeParams
	if cfg.ApplicationName != "" {
		params["application_name"] = cfg.ApplicationName
	}
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}
	return pc, nil
}

// Pool returns the underlying pool for NewSnapshotRepository.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

func (c *Client) Close() {
	c.pool.Close()
}
