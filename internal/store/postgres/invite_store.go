package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const inviteColumns = `invite_id, email, org_id, invited_by, status, created_at, updated_at`

// InviteStore implements store.InviteStore using PostgreSQL.
type InviteStore struct {
	pool *pgxpool.Pool
}

// NewInviteStore creates a new PostgreSQL-backed invite store.
func NewInviteStore(pool *pgxpool.Pool) *InviteStore {
	return &InviteStore{
		pool: pool,
	}
}

// Create creates a pending invite.
func (s *InviteStore) Create(ctx context.Context, invite *models.OrganizationInvite) error {
	invite.Email = strings.ToLower(strings.TrimSpace(invite.Email))
	if invite.Status == "" {
		invite.Status = models.InviteStatusPending
	}
	now := time.Now()
	invite.CreatedAt = now
	invite.UpdatedAt = now

	query := `
		INSERT INTO organization_invites (` + inviteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		invite.ID,
		invite.Email,
		invite.OrganizationID,
		invite.InvitedBy,
		invite.Status,
		invite.CreatedAt,
		invite.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInviteAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return store.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to create invite: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("invite_id", invite.ID.String()).
		Str("org_id", invite.OrganizationID.String()).
		Msg("Created organization invite")

	return nil
}

// Get retrieves an invite by ID.
func (s *InviteStore) Get(ctx context.Context, inviteID uuid.UUID) (*models.OrganizationInvite, error) {
	query := `SELECT ` + inviteColumns + ` FROM organization_invites WHERE invite_id = $1`
	return scanInvite(s.pool.QueryRow(ctx, query, inviteID))
}

// UpdateStatus moves a pending invite to accepted or declined.
func (s *InviteStore) UpdateStatus(ctx context.Context, inviteID uuid.UUID, status string) error {
	query := `
		UPDATE organization_invites SET
			status = $2,
			updated_at = NOW()
		WHERE invite_id = $1 AND status = 'pending'
	`

	result, err := s.pool.Exec(ctx, query, inviteID, status)
	if err != nil {
		return fmt.Errorf("failed to update invite status: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrInviteNotFound
	}

	log.Debug().
		Str("invite_id", inviteID.String()).
		Str("status", status).
		Msg("Updated organization invite status")

	return nil
}

// ListByOrganization returns all invites of an organization, newest first.
func (s *InviteStore) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.OrganizationInvite, error) {
	query := `SELECT ` + inviteColumns + ` FROM organization_invites WHERE org_id = $1 ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var invites []*models.OrganizationInvite
	for rows.Next() {
		invite, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, invite)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invites: %w", err)
	}

	return invites, nil
}

// CountPending returns the number of pending invites of an organization.
func (s *InviteStore) CountPending(ctx context.Context, orgID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM organization_invites WHERE org_id = $1 AND status = 'pending'`
	if err := s.pool.QueryRow(ctx, query, orgID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending invites: %w", mapPostgresError(err))
	}
	return count, nil
}

// GetByEmail retrieves the invite addressed to email in an organization.
func (s *InviteStore) GetByEmail(ctx context.Context, orgID uuid.UUID, email string) (*models.OrganizationInvite, error) {
	query := `SELECT ` + inviteColumns + ` FROM organization_invites WHERE org_id = $1 AND email = $2`
	return scanInvite(s.pool.QueryRow(ctx, query, orgID, strings.ToLower(strings.TrimSpace(email))))
}

func scanInvite(row pgx.Row) (*models.OrganizationInvite, error) {
	var inv models.OrganizationInvite
	err := row.Scan(
		&inv.ID,
		&inv.Email,
		&inv.OrganizationID,
		&inv.InvitedBy,
		&inv.Status,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrInviteNotFound
		}
		return nil, fmt.Errorf("failed to scan invite: %w", mapPostgresError(err))
	}
	return &inv, nil
}
