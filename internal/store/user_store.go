package store

import (
	"context"
	"errors"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/google/uuid"
)

// Sentinel errors for user store operations
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrUserInOtherOrganization is returned when attaching a user who already
	// belongs to a different organization.
	ErrUserInOtherOrganization = errors.New("user already belongs to another organization")
)

// UserStore defines the interface for user storage operations.
type UserStore interface {
	// Create creates a new user.
	// Returns ErrUserAlreadyExists if the ID or email is taken.
	Create(ctx context.Context, user *models.User) error

	// Get retrieves a user by ID.
	// Returns ErrUserNotFound if the user doesn't exist.
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by (case-insensitive) email.
	// Returns ErrUserNotFound if the user doesn't exist.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// ListByOrganization returns the members of an organization.
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.User, error)

	// CountByOrganization returns the number of members of an organization.
	CountByOrganization(ctx context.Context, orgID uuid.UUID) (int, error)

	// SetOrganization attaches an unaffiliated user to an organization.
	// Attaching to the organization the user is already in is a no-op.
	// Returns ErrUserInOtherOrganization if the user belongs elsewhere.
	SetOrganization(ctx context.Context, userID, orgID uuid.UUID) error
}
