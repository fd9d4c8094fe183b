package models

import (
	"time"

	"github.com/google/uuid"
)

// InviteStatus is the lifecycle status of a per-email organization invite.
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusDeclined = "declined"
)

// OrganizationInvite is a single-use invite addressed to one email.
// There is at most one invite per (email, organization).
type OrganizationInvite struct {
	ID             uuid.UUID
	Email          string
	OrganizationID uuid.UUID
	InvitedBy      uuid.UUID
	Status         string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SelfServeInviteState is the derived redemption state of a shareable token.
type SelfServeInviteState string

const (
	SelfServeInvitePending     SelfServeInviteState = "pending"
	SelfServeInviteExhausted   SelfServeInviteState = "exhausted"
	SelfServeInviteExpired     SelfServeInviteState = "expired"
	SelfServeInviteDeactivated SelfServeInviteState = "deactivated"
)

// OrganizationSelfServeInvite is a shareable join link with optional usage
// limit and expiry. UsageCount never exceeds UsageLimit outside a transaction.
type OrganizationSelfServeInvite struct {
	ID             uuid.UUID
	Token          string
	Name           string
	OrganizationID uuid.UUID
	CreatedBy      uuid.UUID
	UsageCount     int
	UsageLimit     *int
	ExpiresAt      *time.Time
	IsActive       bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// State derives the redemption state at the given time. Deactivation wins over
// expiry, which wins over exhaustion.
func (i *OrganizationSelfServeInvite) State(now time.Time) SelfServeInviteState {
	switch {
	case !i.IsActive:
		return SelfServeInviteDeactivated
	case i.ExpiresAt != nil && !i.ExpiresAt.After(now):
		return SelfServeInviteExpired
	case i.UsageLimit != nil && i.UsageCount >= *i.UsageLimit:
		return SelfServeInviteExhausted
	default:
		return SelfServeInvitePending
	}
}

// WithinLimit reports whether the usage counter honours the usage limit.
func (i *OrganizationSelfServeInvite) WithinLimit() bool {
	return i.UsageLimit == nil || i.UsageCount <= *i.UsageLimit
}
