package store

import (
	"context"
	"errors"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/google/uuid"
)

// Sentinel errors for invite store operations
var (
	ErrInviteNotFound               = errors.New("invite not found")
	ErrInviteAlreadyExists          = errors.New("invite already exists")
	ErrSelfServeInviteNotFound      = errors.New("self-serve invite not found")
	ErrSelfServeInviteAlreadyExists = errors.New("self-serve invite already exists")
)

// InviteStore manages per-email organization invites.
type InviteStore interface {
	// Create creates a pending invite.
	// Returns ErrInviteAlreadyExists if one exists for the same (email, organization).
	Create(ctx context.Context, invite *models.OrganizationInvite) error

	// Get retrieves an invite by ID.
	// Returns ErrInviteNotFound if the invite doesn't exist.
	Get(ctx context.Context, inviteID uuid.UUID) (*models.OrganizationInvite, error)

	// UpdateStatus moves a pending invite to accepted or declined.
	// Returns ErrInviteNotFound if no pending invite has this ID.
	UpdateStatus(ctx context.Context, inviteID uuid.UUID, status string) error

	// ListByOrganization returns all invites of an organization, newest first.
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.OrganizationInvite, error)

	// CountPending returns the number of pending invites of an organization.
	CountPending(ctx context.Context, orgID uuid.UUID) (int, error)

	// GetByEmail retrieves the invite addressed to email in an organization.
	// Returns ErrInviteNotFound if there is none.
	GetByEmail(ctx context.Context, orgID uuid.UUID, email string) (*models.OrganizationInvite, error)
}

// SelfServeInviteStore manages shareable invite tokens.
type SelfServeInviteStore interface {
	// Create stores a new self-serve invite.
	// Returns ErrSelfServeInviteAlreadyExists on token collision.
	Create(ctx context.Context, invite *models.OrganizationSelfServeInvite) error

	// Get retrieves a self-serve invite by ID.
	// Returns ErrSelfServeInviteNotFound if the invite doesn't exist.
	Get(ctx context.Context, inviteID uuid.UUID) (*models.OrganizationSelfServeInvite, error)

	// GetByToken retrieves a self-serve invite by its shareable token.
	// Returns ErrSelfServeInviteNotFound if the token is unknown.
	GetByToken(ctx context.Context, token string) (*models.OrganizationSelfServeInvite, error)

	// ListByOrganization returns the self-serve invites of an organization, newest first.
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.OrganizationSelfServeInvite, error)

	// Deactivate clears the IsActive flag. Deactivation is terminal.
	// Returns ErrSelfServeInviteNotFound if the invite doesn't exist.
	Deactivate(ctx context.Context, inviteID uuid.UUID) error

	// WithRedemptionTx runs fn in a single transaction. If fn returns an error
	// every write made through tx is rolled back.
	WithRedemptionTx(ctx context.Context, fn func(ctx context.Context, tx RedemptionTx) error) error
}

// RedemptionTx is the set of writes allowed while reserving an invite slot.
type RedemptionTx interface {
	// IncrementUsage bumps the usage counter and returns the updated row.
	// Concurrent increments of the same invite are serialized.
	IncrementUsage(ctx context.Context, inviteID uuid.UUID) (*models.OrganizationSelfServeInvite, error)

	// CreateUser creates a new user.
	CreateUser(ctx context.Context, user *models.User) error

	// SetUserOrganization behaves like UserStore.SetOrganization.
	SetUserOrganization(ctx context.Context, userID, orgID uuid.UUID) error

	// AcceptPendingInvite marks the pending invite for (email, orgID) as
	// accepted. Reports false when no pending invite matched.
	AcceptPendingInvite(ctx context.Context, email string, orgID uuid.UUID) (bool, error)
}
