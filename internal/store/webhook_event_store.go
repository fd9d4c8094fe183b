package store

import (
	"context"

	"github.com/antiwork/gumboard/internal/models"
)

// WebhookEventStore persists dedup records for payment provider events.
// The unique event ID is the synchronization primitive between concurrent
// deliveries of the same event.
type WebhookEventStore interface {
	// Create records an event as applied or in-flight.
	// Returns ErrWebhookEventExists if the event ID was already recorded.
	Create(ctx context.Context, event *models.WebhookEvent) error

	// Get retrieves a dedup record by event ID.
	// Returns ErrWebhookEventNotFound if the event was never recorded.
	Get(ctx context.Context, eventID string) (*models.WebhookEvent, error)

	// Delete removes a dedup record so the provider's redelivery can reprocess it.
	// Returns ErrWebhookEventNotFound if the event was never recorded.
	Delete(ctx context.Context, eventID string) error
}
