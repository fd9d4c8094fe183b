package postgres

import (
	"fmt"
	"time"
)

// Config holds configuration for the PostgreSQL-backed stores.
type Config struct {
	Pool PoolConfig

	// AutoMigrate runs the embedded migrations when the stores are opened.
	AutoMigrate bool

	// PoolStatsInterval controls how often pool statistics are logged.
	PoolStatsInterval time.Duration
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Pool.Validate(); err != nil {
		return fmt.Errorf("invalid pool config: %w", err)
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	c.Pool.ApplyDefaults()
	if c.PoolStatsInterval == 0 {
		c.PoolStatsInterval = 30 * time.Second
	}
}
