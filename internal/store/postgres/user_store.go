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

const userColumns = `user_id, email, name, org_id, is_admin, email_verified, created_at, updated_at`

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{
		pool: pool,
	}
}

// Create creates a new user in the database.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	return createUser(ctx, s.pool, user)
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return scanUser(s.pool.QueryRow(ctx, query, userID))
}

// GetByEmail retrieves a user by email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(s.pool.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

// ListByOrganization returns the members of an organization ordered by creation time.
func (s *UserStore) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE org_id = $1 ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// CountByOrganization returns the number of members of an organization.
func (s *UserStore) CountByOrganization(ctx context.Context, orgID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE org_id = $1`, orgID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", mapPostgresError(err))
	}
	return count, nil
}

// SetOrganization attaches an unaffiliated user to an organization.
func (s *UserStore) SetOrganization(ctx context.Context, userID, orgID uuid.UUID) error {
	return setUserOrganization(ctx, s.pool, userID, orgID)
}

func createUser(ctx context.Context, q querier, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := q.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.OrganizationID,
		user.IsAdmin,
		user.EmailVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrUserAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return store.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to create user: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("user_id", user.ID.String()).
		Msg("Created user")

	return nil
}

// setUserOrganization only writes org_id while it is still NULL, so a user who
// joined another organization concurrently is never moved.
func setUserOrganization(ctx context.Context, q querier, userID, orgID uuid.UUID) error {
	query := `
		UPDATE users SET
			org_id = $2,
			updated_at = NOW()
		WHERE user_id = $1 AND (org_id IS NULL OR org_id = $2)
	`

	result, err := q.Exec(ctx, query, userID, orgID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to set user organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() > 0 {
		log.Debug().
			Str("user_id", userID.String()).
			Str("org_id", orgID.String()).
			Msg("Attached user to organization")
		return nil
	}

	var exists bool
	err = q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check user: %w", mapPostgresError(err))
	}
	if !exists {
		return store.ErrUserNotFound
	}

	return store.ErrUserInOtherOrganization
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.OrganizationID,
		&u.IsAdmin,
		&u.EmailVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", mapPostgresError(err))
	}
	return &u, nil
}
