package invite

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/antiwork/gumboard/internal/apperr"
	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/antiwork/gumboard/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Redemption is the result of a successful join.
type Redemption struct {
	User           *models.User
	OrganizationID uuid.UUID

	// AlreadyMember is set when the user was in the organization already and
	// no seat was consumed.
	AlreadyMember bool

	// Created is set when the join provisioned a new account.
	Created bool
}

// Preview describes a token for the join page.
type Preview struct {
	Name             string
	OrganizationID   uuid.UUID
	OrganizationName string
	State            models.SelfServeInviteState
	UsageCount       int
	UsageLimit       *int
	ExpiresAt        *time.Time
}

// Preview returns the public view of a token.
func (s *Service) Preview(ctx context.Context, token string) (*Preview, error) {
	inv, err := s.lookupToken(ctx, token)
	if err != nil {
		return nil, err
	}

	org, err := s.orgs.Get(ctx, inv.OrganizationID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return nil, apperr.NotFound(apperr.CodeInviteNotFound, "Invite not found")
		}
		return nil, apperr.Internal("Failed to load organization", err)
	}

	return &Preview{
		Name:             inv.Name,
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		State:            inv.State(s.now()),
		UsageCount:       inv.UsageCount,
		UsageLimit:       inv.UsageLimit,
		ExpiresAt:        inv.ExpiresAt,
	}, nil
}

// Redeem joins an authenticated user to the token's organization.
func (s *Service) Redeem(ctx context.Context, token string, userID uuid.UUID) (*Redemption, error) {
	inv, err := s.lookupToken(ctx, token)
	if err != nil {
		return nil, s.rejected(ctx, err)
	}
	if err := checkState(inv, s.now()); err != nil {
		return nil, s.rejected(ctx, err)
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, apperr.Unauthenticated("Session user no longer exists")
		}
		return nil, apperr.Internal("Failed to load user", err)
	}

	if user.OrganizationID != nil {
		if *user.OrganizationID == inv.OrganizationID {
			return &Redemption{User: user, OrganizationID: inv.OrganizationID, AlreadyMember: true}, nil
		}
		return nil, s.rejected(ctx, apperr.Conflict(apperr.CodeOtherOrganization,
			"You are already a member of another organization"))
	}

	if err := s.checkCapacity(ctx, inv.OrganizationID, user.Email); err != nil {
		return nil, s.rejected(ctx, err)
	}

	err = s.selfServe.WithRedemptionTx(ctx, func(ctx context.Context, tx store.RedemptionTx) error {
		if err := reserve(ctx, tx, inv.ID, s.now()); err != nil {
			return err
		}

		if err := joinOrganization(ctx, tx, user, inv.OrganizationID); err != nil {
			return err
		}
		return settleEmailInvite(ctx, tx, user.Email, inv.OrganizationID)
	})
	if err != nil {
		return nil, s.rejected(ctx, err)
	}

	orgID := inv.OrganizationID
	user.OrganizationID = &orgID

	s.redeemed(ctx, inv, user, "authenticated")

	return &Redemption{User: user, OrganizationID: orgID}, nil
}

// RedeemAnonymous provisions a verified account for email inside the token's
// organization. The caller establishes a session only after this returns.
func (s *Service) RedeemAnonymous(ctx context.Context, token, email, name string) (*Redemption, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	inv, err := s.lookupToken(ctx, token)
	if err != nil {
		return nil, s.rejected(ctx, err)
	}
	if err := checkState(inv, s.now()); err != nil {
		return nil, s.rejected(ctx, err)
	}

	// An existing account must sign in first; issuing it a session here
	// would let anyone with the link log in as that user.
	_, err = s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, s.rejected(ctx, apperr.Conflict(apperr.CodeAccountExists,
			"An account with this email already exists. Please sign in to join."))
	case !errors.Is(err, store.ErrUserNotFound):
		return nil, apperr.Internal("Failed to look up user", err)
	}

	if err := s.checkCapacity(ctx, inv.OrganizationID, email); err != nil {
		return nil, s.rejected(ctx, err)
	}

	now := s.now()
	orgID := inv.OrganizationID
	user := &models.User{
		ID:             uuid.Must(uuid.NewV7()),
		Email:          email,
		Name:           defaultName(name, email),
		OrganizationID: &orgID,
		EmailVerified:  &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.selfServe.WithRedemptionTx(ctx, func(ctx context.Context, tx store.RedemptionTx) error {
		if err := reserve(ctx, tx, inv.ID, now); err != nil {
			return err
		}

		if err := tx.CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrUserAlreadyExists) {
				return apperr.Conflict(apperr.CodeAccountExists,
					"An account with this email already exists. Please sign in to join.")
			}
			return apperr.Internal("Failed to create user", err)
		}
		return settleEmailInvite(ctx, tx, email, orgID)
	})
	if err != nil {
		return nil, s.rejected(ctx, err)
	}

	s.redeemed(ctx, inv, user, "anonymous")

	return &Redemption{User: user, OrganizationID: orgID, Created: true}, nil
}

// reserve takes one seat on the invite. The increment row-locks the invite so
// the re-check sees every committed redemption.
func reserve(ctx context.Context, tx store.RedemptionTx, inviteID uuid.UUID, now time.Time) error {
	updated, err := tx.IncrementUsage(ctx, inviteID)
	if err != nil {
		if errors.Is(err, store.ErrSelfServeInviteNotFound) {
			return apperr.NotFound(apperr.CodeInviteNotFound, "Invite not found")
		}
		return apperr.Internal("Failed to reserve invite", err)
	}

	if !updated.IsActive {
		return apperr.Conflict(apperr.CodeInviteDeactivated, "This invite link has been deactivated")
	}
	if updated.ExpiresAt != nil && !updated.ExpiresAt.After(now) {
		return apperr.Conflict(apperr.CodeInviteExpired, "This invite link has expired")
	}
	if !updated.WithinLimit() {
		return apperr.Conflict(apperr.CodeInviteExhausted, "This invite link has reached its usage limit")
	}
	return nil
}

func joinOrganization(ctx context.Context, tx store.RedemptionTx, user *models.User, orgID uuid.UUID) error {
	if err := tx.SetUserOrganization(ctx, user.ID, orgID); err != nil {
		if errors.Is(err, store.ErrUserInOtherOrganization) {
			return apperr.Conflict(apperr.CodeOtherOrganization, "You are already a member of another organization")
		}
		return apperr.Internal("Failed to join organization", err)
	}
	return nil
}

// settleEmailInvite accepts any pending invite the joining email still holds
// so the member is not counted twice.
func settleEmailInvite(ctx context.Context, tx store.RedemptionTx, email string, orgID uuid.UUID) error {
	if _, err := tx.AcceptPendingInvite(ctx, email, orgID); err != nil {
		return apperr.Internal("Failed to settle pending invite", err)
	}
	return nil
}

func (s *Service) lookupToken(ctx context.Context, token string) (*models.OrganizationSelfServeInvite, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.NotFound(apperr.CodeInviteNotFound, "Invite not found")
	}

	inv, err := s.selfServe.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrSelfServeInviteNotFound) {
			return nil, apperr.NotFound(apperr.CodeInviteNotFound, "Invite not found")
		}
		return nil, apperr.Internal("Failed to load invite", err)
	}
	return inv, nil
}

func (s *Service) rejected(ctx context.Context, err error) error {
	telemetry.Add(ctx, s.metrics.RedemptionRejectedTotal, attribute.String("code", string(apperr.CodeOf(err))))
	zerolog.Ctx(ctx).Info().Err(err).Msg("Invite redemption rejected")
	return err
}

func (s *Service) redeemed(ctx context.Context, inv *models.OrganizationSelfServeInvite, user *models.User, mode string) {
	telemetry.Add(ctx, s.metrics.RedemptionsTotal, attribute.String("mode", mode))
	zerolog.Ctx(ctx).Info().
		Str("invite_id", inv.ID.String()).
		Str("org_id", inv.OrganizationID.String()).
		Str("user_id", user.ID.String()).
		Str("mode", mode).
		Msg("Redeemed invite")
}

func defaultName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}
