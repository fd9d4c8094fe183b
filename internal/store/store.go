package store

import (
	"context"
	"errors"
)

// Sentinel errors shared by all store implementations
var (
	ErrPlanNotFound = errors.New("plan not found")

	ErrWebhookEventExists   = errors.New("webhook event already recorded")
	ErrWebhookEventNotFound = errors.New("webhook event not found")
)

// Stores bundles every store the service depends on.
// Implementations share one backing database so transactions can span them.
type Stores struct {
	Organizations    OrganizationStore
	Plans            PlanStore
	Users            UserStore
	Invites          InviteStore
	SelfServeInvites SelfServeInviteStore
	WebhookEvents    WebhookEventStore
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}
