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

const selfServeInviteColumns = `invite_id, token, name, org_id, created_by, usage_count, usage_limit,
	expires_at, is_active, created_at, updated_at`

// SelfServeInviteStore implements store.SelfServeInviteStore using PostgreSQL.
type SelfServeInviteStore struct {
	pool *pgxpool.Pool
}

// NewSelfServeInviteStore creates a new PostgreSQL-backed self-serve invite store.
func NewSelfServeInviteStore(pool *pgxpool.Pool) *SelfServeInviteStore {
	return &SelfServeInviteStore{
		pool: pool,
	}
}

// Create stores a new self-serve invite.
func (s *SelfServeInviteStore) Create(ctx context.Context, invite *models.OrganizationSelfServeInvite) error {
	now := time.Now()
	invite.CreatedAt = now
	invite.UpdatedAt = now

	query := `
		INSERT INTO organization_self_serve_invites (` + selfServeInviteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		invite.ID,
		invite.Token,
		invite.Name,
		invite.OrganizationID,
		invite.CreatedBy,
		invite.UsageCount,
		invite.UsageLimit,
		invite.ExpiresAt,
		invite.IsActive,
		invite.CreatedAt,
		invite.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrSelfServeInviteAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return store.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to create self-serve invite: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("invite_id", invite.ID.String()).
		Str("org_id", invite.OrganizationID.String()).
		Msg("Created self-serve invite")

	return nil
}

// Get retrieves a self-serve invite by ID.
func (s *SelfServeInviteStore) Get(ctx context.Context, inviteID uuid.UUID) (*models.OrganizationSelfServeInvite, error) {
	query := `SELECT ` + selfServeInviteColumns + ` FROM organization_self_serve_invites WHERE invite_id = $1`
	return scanSelfServeInvite(s.pool.QueryRow(ctx, query, inviteID))
}

// GetByToken retrieves a self-serve invite by its token.
func (s *SelfServeInviteStore) GetByToken(ctx context.Context, token string) (*models.OrganizationSelfServeInvite, error) {
	query := `SELECT ` + selfServeInviteColumns + ` FROM organization_self_serve_invites WHERE token = $1`
	return scanSelfServeInvite(s.pool.QueryRow(ctx, query, token))
}

// ListByOrganization returns the self-serve invites of an organization, newest first.
func (s *SelfServeInviteStore) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.OrganizationSelfServeInvite, error) {
	query := `SELECT ` + selfServeInviteColumns + ` FROM organization_self_serve_invites
		WHERE org_id = $1 ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list self-serve invites: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var invites []*models.OrganizationSelfServeInvite
	for rows.Next() {
		invite, err := scanSelfServeInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, invite)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating self-serve invites: %w", err)
	}

	return invites, nil
}

// Deactivate clears the IsActive flag.
func (s *SelfServeInviteStore) Deactivate(ctx context.Context, inviteID uuid.UUID) error {
	query := `
		UPDATE organization_self_serve_invites SET
			is_active = FALSE,
			updated_at = NOW()
		WHERE invite_id = $1
	`

	result, err := s.pool.Exec(ctx, query, inviteID)
	if err != nil {
		return fmt.Errorf("failed to deactivate self-serve invite: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSelfServeInviteNotFound
	}

	log.Info().
		Str("invite_id", inviteID.String()).
		Msg("Deactivated self-serve invite")

	return nil
}

// WithRedemptionTx runs fn inside a READ COMMITTED transaction. The usage
// increment takes a row lock, so concurrent redemptions of the same invite
// queue behind each other and each sees the committed count.
func (s *SelfServeInviteStore) WithRedemptionTx(ctx context.Context, fn func(ctx context.Context, tx store.RedemptionTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, &redemptionTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapPostgresError(err))
	}

	return nil
}

type redemptionTx struct {
	tx pgx.Tx
}

func (r *redemptionTx) IncrementUsage(ctx context.Context, inviteID uuid.UUID) (*models.OrganizationSelfServeInvite, error) {
	query := `
		UPDATE organization_self_serve_invites SET
			usage_count = usage_count + 1,
			updated_at = NOW()
		WHERE invite_id = $1
		RETURNING ` + selfServeInviteColumns

	invite, err := scanSelfServeInvite(r.tx.QueryRow(ctx, query, inviteID))
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("invite_id", inviteID.String()).
		Int("usage_count", invite.UsageCount).
		Msg("Reserved self-serve invite slot")

	return invite, nil
}

func (r *redemptionTx) CreateUser(ctx context.Context, user *models.User) error {
	return createUser(ctx, r.tx, user)
}

func (r *redemptionTx) SetUserOrganization(ctx context.Context, userID, orgID uuid.UUID) error {
	return setUserOrganization(ctx, r.tx, userID, orgID)
}

func (r *redemptionTx) AcceptPendingInvite(ctx context.Context, email string, orgID uuid.UUID) (bool, error) {
	query := `
		UPDATE organization_invites SET
			status = 'accepted',
			updated_at = NOW()
		WHERE org_id = $1 AND email = $2 AND status = 'pending'
	`

	result, err := r.tx.Exec(ctx, query, orgID, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return false, fmt.Errorf("failed to accept invite: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return false, nil
	}

	log.Debug().
		Str("org_id", orgID.String()).
		Msg("Accepted pending organization invite")

	return true, nil
}

func scanSelfServeInvite(row pgx.Row) (*models.OrganizationSelfServeInvite, error) {
	var inv models.OrganizationSelfServeInvite
	err := row.Scan(
		&inv.ID,
		&inv.Token,
		&inv.Name,
		&inv.OrganizationID,
		&inv.CreatedBy,
		&inv.UsageCount,
		&inv.UsageLimit,
		&inv.ExpiresAt,
		&inv.IsActive,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSelfServeInviteNotFound
		}
		return nil, fmt.Errorf("failed to scan self-serve invite: %w", mapPostgresError(err))
	}
	return &inv, nil
}
