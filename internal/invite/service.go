// Package invite implements organization invites: shareable self-serve links
// with usage limits and expiry, and single-use per-email invites.
package invite

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/antiwork/gumboard/internal/apperr"
	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/antiwork/gumboard/internal/telemetry"
	"github.com/google/uuid"
)

// DefaultFreeTierMemberLimit is the seat cap of organizations without a plan.
const DefaultFreeTierMemberLimit = 3

// Config configures invite policy.
type Config struct {
	// FreeTierMemberLimit caps members plus pending invites of free organizations.
	// Default: 3
	FreeTierMemberLimit int
}

// Service manages invites and their redemption.
type Service struct {
	cfg       Config
	orgs      store.OrganizationStore
	plans     store.PlanStore
	users     store.UserStore
	invites   store.InviteStore
	selfServe store.SelfServeInviteStore
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// NewService creates an invite service.
func NewService(stores store.Stores, cfg Config) *Service {
	if cfg.FreeTierMemberLimit <= 0 {
		cfg.FreeTierMemberLimit = DefaultFreeTierMemberLimit
	}
	return &Service{
		cfg:       cfg,
		orgs:      stores.Organizations,
		plans:     stores.Plans,
		users:     stores.Users,
		invites:   stores.Invites,
		selfServe: stores.SelfServeInvites,
		metrics:   telemetry.GetMetrics(),
		now:       time.Now,
	}
}

// checkState rejects tokens that can no longer be redeemed. Expiry is checked
// before usage so an expired token always reports the expiry.
func checkState(inv *models.OrganizationSelfServeInvite, now time.Time) error {
	switch inv.State(now) {
	case models.SelfServeInviteDeactivated:
		return apperr.Conflict(apperr.CodeInviteDeactivated, "This invite link has been deactivated")
	case models.SelfServeInviteExpired:
		return apperr.Conflict(apperr.CodeInviteExpired, "This invite link has expired")
	case models.SelfServeInviteExhausted:
		return apperr.Conflict(apperr.CodeInviteExhausted, "This invite link has reached its usage limit")
	default:
		return nil
	}
}

// memberLimit returns the seat cap of an organization, zero when unlimited.
// Plans are re-read on every decision.
func (s *Service) memberLimit(ctx context.Context, org *models.Organization) (int, error) {
	if org.IsFreeTier() {
		return s.cfg.FreeTierMemberLimit, nil
	}

	plan, err := s.plans.Get(ctx, *org.Billing.PlanID)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return 0, nil
		}
		return 0, apperr.Internal("Failed to load plan", err)
	}
	if plan.MemberLimit == nil {
		return 0, nil
	}
	return *plan.MemberLimit, nil
}

// checkCapacity rejects adding one more seat when members plus pending
// invites would exceed the organization's cap. A pending invite addressed to
// email already holds its seat, so joining with it passes.
func (s *Service) checkCapacity(ctx context.Context, orgID uuid.UUID, email string) error {
	if email != "" {
		inv, err := s.invites.GetByEmail(ctx, orgID, email)
		switch {
		case err == nil && inv.Status == models.InviteStatusPending:
			return nil
		case err != nil && !errors.Is(err, store.ErrInviteNotFound):
			return apperr.Internal("Failed to load invite", err)
		}
	}

	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return apperr.NotFound(apperr.CodeOrganizationMissing, "Organization not found")
		}
		return apperr.Internal("Failed to load organization", err)
	}

	limit, err := s.memberLimit(ctx, org)
	if err != nil {
		return err
	}
	if limit == 0 {
		return nil
	}

	members, err := s.users.CountByOrganization(ctx, orgID)
	if err != nil {
		return apperr.Internal("Failed to count members", err)
	}
	pending, err := s.invites.CountPending(ctx, orgID)
	if err != nil {
		return apperr.Internal("Failed to count pending invites", err)
	}

	if members+pending+1 > limit {
		return apperr.Conflict(apperr.CodeMemberLimitReached,
			"This organization has reached its member limit. Upgrade to add more members.").
			WithDetail("limit", limit)
	}

	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation(apperr.CodeInviteEmailInvalid, "A valid email address is required")
	}
	return email, nil
}
