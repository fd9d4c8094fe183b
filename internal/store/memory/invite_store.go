package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/google/uuid"
)

// InviteStore implements store.InviteStore using in-memory storage.
type InviteStore struct {
	db *DB
}

// NewInviteStore creates a new in-memory per-email invite store.
func NewInviteStore(db *DB) *InviteStore {
	return &InviteStore{db: db}
}

// Create creates a pending invite.
func (s *InviteStore) Create(ctx context.Context, invite *models.OrganizationInvite) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	invite.Email = strings.ToLower(invite.Email)

	if _, exists := s.db.invites[invite.ID]; exists {
		return store.ErrInviteAlreadyExists
	}
	for _, existing := range s.db.invites {
		if existing.OrganizationID == invite.OrganizationID && existing.Email == invite.Email {
			return store.ErrInviteAlreadyExists
		}
	}

	if invite.Status == "" {
		invite.Status = models.InviteStatusPending
	}

	clone := *invite
	s.db.invites[invite.ID] = &clone

	return nil
}

// Get retrieves an invite by ID.
func (s *InviteStore) Get(ctx context.Context, inviteID uuid.UUID) (*models.OrganizationInvite, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	invite, exists := s.db.invites[inviteID]
	if !exists {
		return nil, store.ErrInviteNotFound
	}

	clone := *invite
	return &clone, nil
}

// UpdateStatus moves a pending invite to a final status.
func (s *InviteStore) UpdateStatus(ctx context.Context, inviteID uuid.UUID, status string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	invite, exists := s.db.invites[inviteID]
	if !exists || invite.Status != models.InviteStatusPending {
		return store.ErrInviteNotFound
	}

	clone := *invite
	clone.Status = status
	clone.UpdatedAt = time.Now()
	s.db.invites[inviteID] = &clone

	return nil
}

// ListByOrganization returns all invites of an organization, newest first.
func (s *InviteStore) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.OrganizationInvite, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*models.OrganizationInvite
	for _, invite := range s.db.invites {
		if invite.OrganizationID == orgID {
			clone := *invite
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// CountPending returns the number of pending invites of an organization.
func (s *InviteStore) CountPending(ctx context.Context, orgID uuid.UUID) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	count := 0
	for _, invite := range s.db.invites {
		if invite.OrganizationID == orgID && invite.Status == models.InviteStatusPending {
			count++
		}
	}

	return count, nil
}

// GetByEmail retrieves the invite addressed to email in an organization.
func (s *InviteStore) GetByEmail(ctx context.Context, orgID uuid.UUID, email string) (*models.OrganizationInvite, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	invite := s.db.inviteByEmailLocked(orgID, email)
	if invite == nil {
		return nil, store.ErrInviteNotFound
	}

	clone := *invite
	return &clone, nil
}

// inviteByEmailLocked finds the invite for (orgID, email). Caller must hold the lock.
func (db *DB) inviteByEmailLocked(orgID uuid.UUID, email string) *models.OrganizationInvite {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, invite := range db.invites {
		if invite.OrganizationID == orgID && invite.Email == email {
			return invite
		}
	}
	return nil
}
