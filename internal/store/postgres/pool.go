package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultApplicationName = "gumboard"
	defaultMaxConns        = 20
	defaultMinConns        = 2
	defaultConnLifetime    = time.Hour
	defaultConnIdleTime    = 30 * time.Minute
	defaultHealthCheck     = time.Minute
	defaultConnectTimeout  = 10 * time.Second

	// Webhook deliveries time out on the provider side after about 10s, so
	// a statement running longer only produces a redelivery.
	defaultStatementTimeout = 5 * time.Second

	// Redemption transactions hold the invite row lock; an abandoned one
	// would stall every other join through the same link.
	defaultIdleInTxTimeout = 15 * time.Second
)

// PoolConfig configures the connection pool shared by every store.
type PoolConfig struct {
	// ConnString is a postgres:// URL or key=value DSN.
	ConnString string

	// ApplicationName is reported in pg_stat_activity.
	ApplicationName string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration

	// StatementTimeout is set as the session statement_timeout.
	StatementTimeout time.Duration

	// IdleInTxTimeout is set as the session idle_in_transaction_session_timeout.
	IdleInTxTimeout time.Duration
}

// Validate checks that the pool configuration is usable.
func (c *PoolConfig) Validate() error {
	if c.ConnString == "" {
		return errors.New("connection string is required")
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("max conns must be positive, got %d", c.MaxConns)
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min conns %d exceeds max conns %d", c.MinConns, c.MaxConns)
	}
	if c.StatementTimeout < 0 || c.IdleInTxTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// ApplyDefaults fills unset fields.
func (c *PoolConfig) ApplyDefaults() {
	if c.ApplicationName == "" {
		c.ApplicationName = defaultApplicationName
	}
	if c.MaxConns == 0 {
		c.MaxConns = defaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = min(defaultMinConns, c.MaxConns)
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = defaultConnLifetime
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = defaultConnIdleTime
	}
	if c.HealthCheckPeriod == 0 {
		c.HealthCheckPeriod = defaultHealthCheck
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.StatementTimeout == 0 {
		c.StatementTimeout = defaultStatementTimeout
	}
	if c.IdleInTxTimeout == 0 {
		c.IdleInTxTimeout = defaultIdleInTxTimeout
	}
}

// pgxConfig translates the config into pgxpool settings. Session parameters
// are sent in the startup packet so every pooled connection carries them.
func (c *PoolConfig) pgxConfig() (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(c.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = c.MaxConns
	poolConfig.MinConns = c.MinConns
	poolConfig.MaxConnLifetime = c.MaxConnLifetime
	poolConfig.MaxConnIdleTime = c.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = c.HealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = c.ConnectTimeout

	params := poolConfig.ConnConfig.RuntimeParams
	if _, ok := params["application_name"]; !ok {
		params["application_name"] = c.ApplicationName
	}
	params["statement_timeout"] = millis(c.StatementTimeout)
	params["idle_in_transaction_session_timeout"] = millis(c.IdleInTxTimeout)

	return poolConfig, nil
}

// NewPool opens the pool and pings it once.
func NewPool(ctx context.Context, cfg *PoolConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, errors.New("pool config is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	poolConfig, err := cfg.pgxConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func millis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}
