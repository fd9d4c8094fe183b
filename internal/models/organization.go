package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the internal view of a provider subscription state.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
	SubscriptionStatusInactive          SubscriptionStatus = "inactive" // fallback for anything unrecognized
)

// Organization represents a tenant: the billing and membership boundary.
// Billing fields are only written by webhook reconciliation.
type Organization struct {
	ID   uuid.UUID // UUIDv7
	Name string

	Billing Billing

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Billing holds the provider-synchronized subscription state of an organization.
type Billing struct {
	CustomerRef        *string
	SubscriptionRef    *string
	CurrentPeriodEnd   *time.Time
	SubscriptionStatus SubscriptionStatus
	PlanID             *uuid.UUID // nil means free tier

	// BillingEventAt is the provider creation time of the last applied event.
	BillingEventAt *time.Time
}

// IsFreeTier returns true when the organization has no paid plan attached.
func (o *Organization) IsFreeTier() bool {
	return o.Billing.PlanID == nil
}
