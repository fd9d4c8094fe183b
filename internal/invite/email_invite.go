package invite

import (
	"context"
	"errors"

	"github.com/antiwork/gumboard/internal/apperr"
	"github.com/antiwork/gumboard/internal/auth"
	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/antiwork/gumboard/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// InviteByEmail creates a pending invite for email in the actor's
// organization. Pending invites count against the member limit.
func (s *Service) InviteByEmail(ctx context.Context, actorID uuid.UUID, email string) (*models.OrganizationInvite, error) {
	actor, err := auth.OrgAdmin(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}

	email, err = normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	orgID := *actor.OrganizationID

	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil && existing.BelongsTo(orgID):
		return nil, apperr.Conflict(apperr.CodeInviteDuplicate, "This user is already a member")
	case err != nil && !errors.Is(err, store.ErrUserNotFound):
		return nil, apperr.Internal("Failed to look up user", err)
	}

	if err := s.checkCapacity(ctx, orgID, ""); err != nil {
		return nil, err
	}

	now := s.now()
	inv := &models.OrganizationInvite{
		ID:             uuid.Must(uuid.NewV7()),
		Email:          email,
		OrganizationID: orgID,
		InvitedBy:      actor.ID,
		Status:         models.InviteStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.invites.Create(ctx, inv); err != nil {
		if errors.Is(err, store.ErrInviteAlreadyExists) {
			return nil, apperr.Conflict(apperr.CodeInviteDuplicate, "This email has already been invited")
		}
		return nil, apperr.Internal("Failed to create invite", err)
	}

	telemetry.Add(ctx, s.metrics.InvitesCreatedTotal, attribute.String("kind", "email"))
	zerolog.Ctx(ctx).Info().
		Str("invite_id", inv.ID.String()).
		Str("org_id", orgID.String()).
		Msg("Created organization invite")

	return inv, nil
}

// ListInvites returns the per-email invites of the actor's organization.
func (s *Service) ListInvites(ctx context.Context, actorID uuid.UUID) ([]*models.OrganizationInvite, error) {
	actor, err := auth.OrgAdmin(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}

	invites, err := s.invites.ListByOrganization(ctx, *actor.OrganizationID)
	if err != nil {
		return nil, apperr.Internal("Failed to list invites", err)
	}
	return invites, nil
}

// AcceptInvite joins the user to the inviting organization. The invite must be
// pending and addressed to the user's email.
func (s *Service) AcceptInvite(ctx context.Context, inviteID, userID uuid.UUID) (*models.User, error) {
	user, inv, err := s.respondable(ctx, inviteID, userID)
	if err != nil {
		return nil, err
	}

	if user.OrganizationID != nil && !user.BelongsTo(inv.OrganizationID) {
		return nil, apperr.Conflict(apperr.CodeOtherOrganization, "You are already a member of another organization")
	}

	err = s.selfServe.WithRedemptionTx(ctx, func(ctx context.Context, tx store.RedemptionTx) error {
		if err := joinOrganization(ctx, tx, user, inv.OrganizationID); err != nil {
			return err
		}

		accepted, err := tx.AcceptPendingInvite(ctx, inv.Email, inv.OrganizationID)
		if err != nil {
			return apperr.Internal("Failed to update invite", err)
		}
		if !accepted {
			return apperr.Conflict(apperr.CodeInviteAlreadyUsed, "This invite has already been answered")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	orgID := inv.OrganizationID
	user.OrganizationID = &orgID

	zerolog.Ctx(ctx).Info().
		Str("invite_id", inv.ID.String()).
		Str("user_id", user.ID.String()).
		Msg("Accepted organization invite")

	return user, nil
}

// DeclineInvite marks a pending invite addressed to the user as declined.
func (s *Service) DeclineInvite(ctx context.Context, inviteID, userID uuid.UUID) error {
	_, inv, err := s.respondable(ctx, inviteID, userID)
	if err != nil {
		return err
	}

	if err := s.invites.UpdateStatus(ctx, inv.ID, models.InviteStatusDeclined); err != nil {
		if errors.Is(err, store.ErrInviteNotFound) {
			return apperr.Conflict(apperr.CodeInviteAlreadyUsed, "This invite has already been answered")
		}
		return apperr.Internal("Failed to update invite", err)
	}
	return nil
}

func (s *Service) respondable(ctx context.Context, inviteID, userID uuid.UUID) (*models.User, *models.OrganizationInvite, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil, apperr.Unauthenticated("Session user no longer exists")
		}
		return nil, nil, apperr.Internal("Failed to load user", err)
	}

	inv, err := s.invites.Get(ctx, inviteID)
	if err != nil {
		if errors.Is(err, store.ErrInviteNotFound) {
			return nil, nil, apperr.NotFound(apperr.CodeInviteNotFound, "Invite not found")
		}
		return nil, nil, apperr.Internal("Failed to load invite", err)
	}

	if inv.Email != user.Email {
		return nil, nil, apperr.Authorization(apperr.CodeInviteWrongEmail, "This invite was sent to a different email address")
	}
	if inv.Status != models.InviteStatusPending {
		return nil, nil, apperr.Conflict(apperr.CodeInviteAlreadyUsed, "This invite has already been answered")
	}

	return user, inv, nil
}
