package auth

import (
	"context"
	"errors"

	"github.com/antiwork/gumboard/internal/apperr"
	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/google/uuid"
)

// Member loads the acting user and requires an organization.
func Member(ctx context.Context, users store.UserStore, userID uuid.UUID) (*models.User, error) {
	user, err := users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, apperr.Unauthenticated("Session user no longer exists")
		}
		return nil, apperr.Internal("Failed to load user", err)
	}

	if user.OrganizationID == nil {
		return nil, apperr.Authorization(apperr.CodeNoOrganization, "You are not a member of an organization")
	}

	return user, nil
}

// OrgAdmin loads the acting user and requires admin rights in their organization.
func OrgAdmin(ctx context.Context, users store.UserStore, userID uuid.UUID) (*models.User, error) {
	user, err := Member(ctx, users, userID)
	if err != nil {
		return nil, err
	}

	if !user.IsAdmin {
		return nil, apperr.Authorization(apperr.CodeNotAdmin, "Only organization admins can perform this action")
	}

	return user, nil
}
