package billing

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/antiwork/gumboard/internal/apperr"
	"github.com/antiwork/gumboard/internal/auth"
	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MaxTeamEmails caps the invites a single checkout can carry.
const MaxTeamEmails = 50

// ServiceConfig configures checkout and portal redirects.
type ServiceConfig struct {
	// AppURL is the public base URL of the application, without trailing slash.
	AppURL string
}

// Service creates provider checkout and billing portal sessions.
type Service struct {
	cfg      ServiceConfig
	orgs     store.OrganizationStore
	plans    store.PlanStore
	users    store.UserStore
	provider Provider
}

// NewService creates a billing service.
func NewService(stores store.Stores, provider Provider, cfg ServiceConfig) *Service {
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	return &Service{
		cfg:      cfg,
		orgs:     stores.Organizations,
		plans:    stores.Plans,
		users:    stores.Users,
		provider: provider,
	}
}

// CreateCheckout starts a subscription checkout for the actor's organization
// and returns the provider redirect URL. The price always comes from the
// stored plan, never from the client.
func (s *Service) CreateCheckout(ctx context.Context, actorID, planID uuid.UUID, teamEmails []string) (string, error) {
	actor, err := auth.OrgAdmin(ctx, s.users, actorID)
	if err != nil {
		return "", err
	}

	plan, err := s.plans.Get(ctx, planID)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return "", apperr.NotFound(apperr.CodePlanMissing, "Plan not found").
				WithDetail("planId", planID.String())
		}
		return "", apperr.Internal("Failed to load plan", err)
	}

	emails, err := normalizeTeamEmails(teamEmails)
	if err != nil {
		return "", err
	}

	org, err := s.orgs.Get(ctx, *actor.OrganizationID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return "", apperr.NotFound(apperr.CodeOrganizationMissing, "Organization not found")
		}
		return "", apperr.Internal("Failed to load organization", err)
	}

	params := CheckoutParams{
		PriceRef:      plan.PriceRef,
		CustomerEmail: actor.Email,
		SuccessURL:    s.cfg.AppURL + "/settings/organization?checkout=success",
		CancelURL:     s.cfg.AppURL + "/settings/organization?checkout=canceled",
		Metadata: map[string]string{
			MetadataOrganizationID:   org.ID.String(),
			MetadataOrganizationName: org.Name,
			MetadataPlanID:           plan.ID.String(),
			MetadataUserID:           actor.ID.String(),
		},
	}
	if org.Billing.CustomerRef != nil {
		params.CustomerRef = *org.Billing.CustomerRef
		params.CustomerEmail = ""
	}
	if len(emails) > 0 {
		params.Metadata[MetadataTeamEmails] = strings.Join(emails, ",")
	}

	url, err := s.provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		return "", apperr.TransientProvider("Failed to create checkout session", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("org_id", org.ID.String()).
		Str("plan_id", plan.ID.String()).
		Int("team_emails", len(emails)).
		Msg("Created checkout session")

	return url, nil
}

// CreatePortal opens the billing portal for the actor's organization.
func (s *Service) CreatePortal(ctx context.Context, actorID uuid.UUID) (string, error) {
	actor, err := auth.OrgAdmin(ctx, s.users, actorID)
	if err != nil {
		return "", err
	}

	org, err := s.orgs.Get(ctx, *actor.OrganizationID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return "", apperr.NotFound(apperr.CodeOrganizationMissing, "Organization not found")
		}
		return "", apperr.Internal("Failed to load organization", err)
	}

	if org.Billing.CustomerRef == nil || *org.Billing.CustomerRef == "" {
		return "", apperr.NotFound(apperr.CodeNoBillingAccount, "Organization has no billing account")
	}

	url, err := s.provider.CreatePortalSession(ctx, *org.Billing.CustomerRef, s.cfg.AppURL+"/settings/organization")
	if err != nil {
		return "", apperr.TransientProvider("Failed to create billing portal session", err)
	}

	return url, nil
}

// ListPlans returns the plan catalog.
func (s *Service) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	plans, err := s.plans.List(ctx)
	if err != nil {
		return nil, apperr.Internal("Failed to list plans", err)
	}
	return plans, nil
}

func normalizeTeamEmails(raw []string) ([]string, error) {
	emails := SplitEmails(strings.Join(raw, ","))
	if len(emails) > MaxTeamEmails {
		return nil, apperr.Validation(apperr.CodeInviteEmailInvalid, "Too many team emails").
			WithDetail("max", MaxTeamEmails)
	}
	for _, email := range emails {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return nil, apperr.Validation(apperr.CodeInviteEmailInvalid, "Invalid team email").
				WithDetail("email", email)
		}
	}
	return emails, nil
}
