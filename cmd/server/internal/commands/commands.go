package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/antiwork/gumboard/internal/store"
	memorystore "github.com/antiwork/gumboard/internal/store/memory"
	postgresstore "github.com/antiwork/gumboard/internal/store/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type Globals struct {
	Debug   bool
	Version string
}

// StoreFlags selects and configures the persistence backend.
type StoreFlags struct {
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"GUMBOARD_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns          int32         `help:"maximum number of connections in pool" default:"20"`
	MinConns          int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime   time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime   time.Duration `help:"maximum connection idle time" default:"30m"`
	StatementTimeout  time.Duration `help:"session statement timeout" default:"5s"`
	IdleInTxTimeout   time.Duration `help:"session idle in transaction timeout" default:"15s"`
	PoolStatsInterval time.Duration `help:"interval between pool stats log lines" default:"30s"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"GUMBOARD_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	// kong validates embedded groups regardless of store type; the connection
	// string is checked when the postgres store is opened.
	if s.MinConns > s.MaxConns {
		return errors.New("postgres min conns must not exceed max conns")
	}
	return nil
}

func (s *PostgresStoreFlags) config() *postgresstore.Config {
	return &postgresstore.Config{
		Pool: postgresstore.PoolConfig{
			ConnString:       s.ConnString,
			MaxConns:         s.MaxConns,
			MinConns:         s.MinConns,
			MaxConnLifetime:  s.MaxConnLifetime,
			MaxConnIdleTime:  s.MaxConnIdleTime,
			StatementTimeout: s.StatementTimeout,
			IdleInTxTimeout:  s.IdleInTxTimeout,
		},
		AutoMigrate:       s.AutoMigrate,
		PoolStatsInterval: s.PoolStatsInterval,
	}
}

// openedStores is a store set plus its backend lifecycle.
type openedStores struct {
	stores store.Stores
	pool   *pgxpool.Pool // nil for the memory store
	cfg    *postgresstore.Config
}

func (o *openedStores) pinger() store.Pinger {
	if o.pool == nil {
		return nil
	}
	return o.pool
}

func (o *openedStores) monitor(ctx context.Context) {
	if o.pool == nil {
		return
	}
	go postgresstore.MonitorPool(ctx, o.pool, o.cfg.PoolStatsInterval)
}

func (o *openedStores) Close() {
	if o.pool != nil {
		o.pool.Close()
	}
}

func (f *StoreFlags) open(ctx context.Context, log zerolog.Logger) (*openedStores, error) {
	switch f.StoreType {
	case "postgres":
		if f.PostgresStore.ConnString == "" {
			return nil, errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
		}
		cfg := f.PostgresStore.config()
		pool, stores, err := postgresstore.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres stores: %w", err)
		}
		log.Info().Msg("Using PostgreSQL stores with shared connection pool")
		return &openedStores{stores: stores, pool: pool, cfg: cfg}, nil
	default:
		log.Warn().Msg("Using in-memory stores, data is lost on restart")
		return &openedStores{stores: memorystore.NewStores()}, nil
	}
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	// Create HTTP server
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
