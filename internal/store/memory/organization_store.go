package memory

import (
	"context"
	"time"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/google/uuid"
)

// OrganizationStore implements store.OrganizationStore using in-memory storage.
type OrganizationStore struct {
	db *DB
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore(db *DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

// Create creates a new organization in memory.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.organizations[org.ID]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	if org.Billing.SubscriptionStatus == "" {
		org.Billing.SubscriptionStatus = models.SubscriptionStatusInactive
	}

	// Clone to avoid external modifications
	clone := *org
	s.db.organizations[org.ID] = &clone

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	org, exists := s.db.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}

// Update updates the name of an existing organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	existing, exists := s.db.organizations[org.ID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	org.UpdatedAt = time.Now()

	clone := *existing
	clone.Name = org.Name
	clone.UpdatedAt = org.UpdatedAt
	s.db.organizations[org.ID] = &clone

	return nil
}

// UpdateBilling replaces the billing fields of an existing organization.
func (s *OrganizationStore) UpdateBilling(ctx context.Context, orgID uuid.UUID, billing models.Billing) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	existing, exists := s.db.organizations[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	clone := *existing
	clone.Billing = billing
	clone.UpdatedAt = time.Now()
	s.db.organizations[orgID] = &clone

	return nil
}

// UpsertBilling writes billing fields, creating the organization when missing.
func (s *OrganizationStore) UpsertBilling(ctx context.Context, org *models.Organization) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	now := time.Now()

	existing, exists := s.db.organizations[org.ID]
	if !exists {
		clone := *org
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = now
		}
		clone.UpdatedAt = now
		s.db.organizations[org.ID] = &clone
		return nil
	}

	clone := *existing
	clone.Billing = org.Billing
	clone.UpdatedAt = now
	s.db.organizations[org.ID] = &clone

	return nil
}

// Delete deletes an organization by ID.
// Note: In-memory implementation doesn't cascade to users and invites.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.organizations[orgID]; !exists {
		return store.ErrOrganizationNotFound
	}

	delete(s.db.organizations, orgID)

	return nil
}
