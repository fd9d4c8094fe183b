package memory

import (
	"context"
	"strings"
	"time"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/google/uuid"
)

// UserStore implements store.UserStore using in-memory storage.
type UserStore struct {
	db *DB
}

// NewUserStore creates a new in-memory user store.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// Create creates a new user in memory.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	return s.db.createUserLocked(user)
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	user, exists := s.db.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

// GetByEmail retrieves a user by email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	userID, exists := s.db.usersByEmail[strings.ToLower(email)]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *s.db.users[userID]
	return &clone, nil
}

// ListByOrganization returns the members of an organization.
func (s *UserStore) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*models.User
	for _, user := range s.db.users {
		if user.BelongsTo(orgID) {
			clone := *user
			result = append(result, &clone)
		}
	}

	return result, nil
}

// CountByOrganization returns the number of members of an organization.
func (s *UserStore) CountByOrganization(ctx context.Context, orgID uuid.UUID) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	count := 0
	for _, user := range s.db.users {
		if user.BelongsTo(orgID) {
			count++
		}
	}

	return count, nil
}

// SetOrganization attaches an unaffiliated user to an organization.
func (s *UserStore) SetOrganization(ctx context.Context, userID, orgID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	_, err := s.db.setUserOrganizationLocked(userID, orgID)
	return err
}

// createUserLocked inserts a user. Caller must hold the write lock.
func (db *DB) createUserLocked(user *models.User) error {
	email := strings.ToLower(user.Email)

	if _, exists := db.users[user.ID]; exists {
		return store.ErrUserAlreadyExists
	}
	if _, exists := db.usersByEmail[email]; exists {
		return store.ErrUserAlreadyExists
	}

	user.Email = email

	clone := *user
	db.users[user.ID] = &clone
	db.usersByEmail[email] = user.ID

	return nil
}

// setUserOrganizationLocked attaches a user and returns the previous row for
// undo, or nil when nothing changed. Caller must hold the write lock.
func (db *DB) setUserOrganizationLocked(userID, orgID uuid.UUID) (*models.User, error) {
	user, exists := db.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	if user.OrganizationID != nil {
		if *user.OrganizationID == orgID {
			return nil, nil
		}
		return nil, store.ErrUserInOtherOrganization
	}

	previous := *user

	clone := *user
	clone.OrganizationID = &orgID
	clone.UpdatedAt = time.Now()
	db.users[userID] = &clone

	return &previous, nil
}
