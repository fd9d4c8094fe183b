package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/antiwork/gumboard/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so row helpers can
// run inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open connects to PostgreSQL, optionally runs migrations, and returns the
// pool together with every store backed by it.
func Open(ctx context.Context, cfg *Config) (*pgxpool.Pool, store.Stores, error) {
	if cfg == nil {
		return nil, store.Stores{}, fmt.Errorf("postgres config is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, store.Stores{}, err
	}

	pool, err := NewPool(ctx, &cfg.Pool)
	if err != nil {
		return nil, store.Stores{}, err
	}

	log.Info().
		Str("database", pool.Config().ConnConfig.Database).
		Str("host", pool.Config().ConnConfig.Host).
		Int32("max_conns", cfg.Pool.MaxConns).
		Msg("Connected to PostgreSQL")

	// Run migrations only if explicitly enabled
	if cfg.AutoMigrate {
		if err := RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, store.Stores{}, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return pool, NewStores(pool), nil
}

// NewStores creates every PostgreSQL-backed store over a shared pool.
func NewStores(pool *pgxpool.Pool) store.Stores {
	return store.Stores{
		Organizations:    NewOrganizationStore(pool),
		Plans:            NewPlanStore(pool),
		Users:            NewUserStore(pool),
		Invites:          NewInviteStore(pool),
		SelfServeInvites: NewSelfServeInviteStore(pool),
		WebhookEvents:    NewWebhookEventStore(pool),
	}
}

// MonitorPool logs connection pool statistics periodically until ctx is done.
func MonitorPool(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := pool.Stat()
			log.Debug().
				Int32("total_conns", stats.TotalConns()).
				Int32("idle_conns", stats.IdleConns()).
				Int32("acquired_conns", stats.AcquiredConns()).
				Int64("acquire_count", stats.AcquireCount()).
				Int64("acquire_duration_ns", stats.AcquireDuration().Nanoseconds()).
				Msg("Connection pool stats")
		case <-ctx.Done():
			return
		}
	}
}
