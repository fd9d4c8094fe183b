package store

import (
	"context"
	"errors"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/google/uuid"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
)

// OrganizationStore defines the interface for organization storage operations.
// Organizations are tenants: every user, invite and subscription hangs off one.
type OrganizationStore interface {
	// Create creates a new organization with empty billing fields.
	// Returns ErrOrganizationAlreadyExists if an organization with the same ID already exists.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// Update updates the non-billing fields of an existing organization.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Update(ctx context.Context, org *models.Organization) error

	// UpdateBilling replaces the billing fields of an existing organization.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	UpdateBilling(ctx context.Context, orgID uuid.UUID, billing models.Billing) error

	// UpsertBilling writes the billing fields, creating the organization row
	// from org when it does not exist yet. Only billing fields are touched on
	// an existing row.
	UpsertBilling(ctx context.Context, org *models.Organization) error

	// Delete deletes an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Delete(ctx context.Context, orgID uuid.UUID) error
}
