package invite

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antiwork/gumboard/internal/apperr"
	"github.com/antiwork/gumboard/internal/auth"
	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/antiwork/gumboard/internal/telemetry"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	tokenBytes       = 16
	maxTokenAttempts = 3
	maxInviteName    = 100
)

// CreateSelfServeParams describes a new shareable invite.
type CreateSelfServeParams struct {
	Name       string
	UsageLimit *int
	ExpiresAt  *time.Time
}

// CreateSelfServe creates a shareable invite for the actor's organization.
func (s *Service) CreateSelfServe(ctx context.Context, actorID uuid.UUID, params CreateSelfServeParams) (*models.OrganizationSelfServeInvite, error) {
	actor, err := auth.OrgAdmin(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(params.Name)
	if name == "" || len(name) > maxInviteName {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "Invite name is required").
			WithDetail("field", "name")
	}
	if params.UsageLimit != nil && *params.UsageLimit < 1 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "Usage limit must be at least 1").
			WithDetail("field", "usageLimit")
	}

	now := s.now()
	if params.ExpiresAt != nil && !params.ExpiresAt.After(now) {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "Expiry must be in the future").
			WithDetail("field", "expiresAt")
	}

	inv := &models.OrganizationSelfServeInvite{
		ID:             uuid.Must(uuid.NewV7()),
		Name:           name,
		OrganizationID: *actor.OrganizationID,
		CreatedBy:      actor.ID,
		UsageLimit:     params.UsageLimit,
		ExpiresAt:      params.ExpiresAt,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for attempt := 1; ; attempt++ {
		token, err := newToken()
		if err != nil {
			return nil, apperr.Internal("Failed to generate invite token", err)
		}
		inv.Token = token

		err = s.selfServe.Create(ctx, inv)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrSelfServeInviteAlreadyExists) || attempt == maxTokenAttempts {
			return nil, apperr.Internal("Failed to create invite", err)
		}
	}

	telemetry.Add(ctx, s.metrics.InvitesCreatedTotal, attribute.String("kind", "self_serve"))
	zerolog.Ctx(ctx).Info().
		Str("invite_id", inv.ID.String()).
		Str("org_id", inv.OrganizationID.String()).
		Msg("Created self-serve invite")

	return inv, nil
}

// ListSelfServe returns the shareable invites of the actor's organization.
func (s *Service) ListSelfServe(ctx context.Context, actorID uuid.UUID) ([]*models.OrganizationSelfServeInvite, error) {
	actor, err := auth.OrgAdmin(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}

	invites, err := s.selfServe.ListByOrganization(ctx, *actor.OrganizationID)
	if err != nil {
		return nil, apperr.Internal("Failed to list invites", err)
	}
	return invites, nil
}

// Deactivate permanently disables a shareable invite. Invites of other
// organizations are reported as not found.
func (s *Service) Deactivate(ctx context.Context, actorID, inviteID uuid.UUID) error {
	actor, err := auth.OrgAdmin(ctx, s.users, actorID)
	if err != nil {
		return err
	}

	inv, err := s.selfServe.Get(ctx, inviteID)
	if err != nil {
		if errors.Is(err, store.ErrSelfServeInviteNotFound) {
			return apperr.NotFound(apperr.CodeInviteNotFound, "Invite not found")
		}
		return apperr.Internal("Failed to load invite", err)
	}
	if !actor.BelongsTo(inv.OrganizationID) {
		return apperr.NotFound(apperr.CodeInviteNotFound, "Invite not found")
	}

	if err := s.selfServe.Deactivate(ctx, inviteID); err != nil {
		if errors.Is(err, store.ErrSelfServeInviteNotFound) {
			return apperr.NotFound(apperr.CodeInviteNotFound, "Invite not found")
		}
		return apperr.Internal("Failed to deactivate invite", err)
	}

	zerolog.Ctx(ctx).Info().Str("invite_id", inviteID.String()).Msg("Deactivated self-serve invite")
	return nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base58.Encode(b), nil
}
