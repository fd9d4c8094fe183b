package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// WebhookEventStore implements store.WebhookEventStore using PostgreSQL.
// The primary key on event_id serializes concurrent deliveries.
type WebhookEventStore struct {
	pool *pgxpool.Pool
}

// NewWebhookEventStore creates a new PostgreSQL-backed webhook event store.
func NewWebhookEventStore(pool *pgxpool.Pool) *WebhookEventStore {
	return &WebhookEventStore{
		pool: pool,
	}
}

// Create records an event. A duplicate event ID yields store.ErrWebhookEventExists.
func (s *WebhookEventStore) Create(ctx context.Context, event *models.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (event_id, type, payload_checksum, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING created_at
	`

	err := s.pool.QueryRow(ctx, query,
		event.EventID,
		event.Type,
		int64(event.PayloadChecksum), //nolint:gosec // stored bit-for-bit in BIGINT
	).Scan(&event.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrWebhookEventExists
		}
		return fmt.Errorf("failed to record webhook event: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("event_id", event.EventID).
		Str("type", event.Type).
		Msg("Recorded webhook event")

	return nil
}

// Get retrieves a dedup record by event ID.
func (s *WebhookEventStore) Get(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	query := `SELECT event_id, type, payload_checksum, created_at FROM webhook_events WHERE event_id = $1`

	var event models.WebhookEvent
	var checksum int64
	err := s.pool.QueryRow(ctx, query, eventID).Scan(
		&event.EventID,
		&event.Type,
		&checksum,
		&event.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrWebhookEventNotFound
		}
		return nil, fmt.Errorf("failed to get webhook event: %w", mapPostgresError(err))
	}

	event.PayloadChecksum = uint64(checksum) //nolint:gosec // round-trips the BIGINT encoding

	return &event, nil
}

// Delete removes a dedup record.
func (s *WebhookEventStore) Delete(ctx context.Context, eventID string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM webhook_events WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("failed to delete webhook event: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrWebhookEventNotFound
	}

	log.Info().
		Str("event_id", eventID).
		Msg("Deleted webhook event")

	return nil
}
