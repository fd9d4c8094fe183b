package memory

import (
	"context"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
)

// WebhookEventStore implements store.WebhookEventStore using in-memory storage.
type WebhookEventStore struct {
	db *DB
}

// NewWebhookEventStore creates a new in-memory webhook dedup store.
func NewWebhookEventStore(db *DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

// Create records an event, failing if the event ID is already present.
func (s *WebhookEventStore) Create(ctx context.Context, event *models.WebhookEvent) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.webhookEvents[event.EventID]; exists {
		return store.ErrWebhookEventExists
	}

	clone := *event
	s.db.webhookEvents[event.EventID] = &clone

	return nil
}

// Get retrieves a dedup record by event ID.
func (s *WebhookEventStore) Get(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	event, exists := s.db.webhookEvents[eventID]
	if !exists {
		return nil, store.ErrWebhookEventNotFound
	}

	clone := *event
	return &clone, nil
}

// Delete removes a dedup record.
func (s *WebhookEventStore) Delete(ctx context.Context, eventID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.webhookEvents[eventID]; !exists {
		return store.ErrWebhookEventNotFound
	}

	delete(s.db.webhookEvents, eventID)

	return nil
}
