package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a person who belongs to at most one organization at a time.
type User struct {
	ID             uuid.UUID // UUIDv7
	Email          string    // lower-cased, unique
	Name           string
	OrganizationID *uuid.UUID
	IsAdmin        bool
	EmailVerified  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BelongsTo returns true if the user is a member of the given organization.
func (u *User) BelongsTo(orgID uuid.UUID) bool {
	return u.OrganizationID != nil && *u.OrganizationID == orgID
}
