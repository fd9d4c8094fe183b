package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PlanStore implements store.PlanStore using PostgreSQL.
type PlanStore struct {
	pool *pgxpool.Pool
}

// NewPlanStore creates a new PostgreSQL-backed plan store.
func NewPlanStore(pool *pgxpool.Pool) *PlanStore {
	return &PlanStore{
		pool: pool,
	}
}

// Get retrieves a plan by ID.
func (s *PlanStore) Get(ctx context.Context, planID uuid.UUID) (*models.Plan, error) {
	query := `
		SELECT plan_id, name, price_ref, description, member_limit, created_at, updated_at
		FROM plans
		WHERE plan_id = $1
	`

	var p models.Plan
	err := s.pool.QueryRow(ctx, query, planID).Scan(
		&p.ID,
		&p.Name,
		&p.PriceRef,
		&p.Description,
		&p.MemberLimit,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", mapPostgresError(err))
	}

	return &p, nil
}

// List returns all plans ordered by name.
func (s *PlanStore) List(ctx context.Context) ([]*models.Plan, error) {
	query := `
		SELECT plan_id, name, price_ref, description, member_limit, created_at, updated_at
		FROM plans
		ORDER BY name ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		var p models.Plan
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.PriceRef,
			&p.Description,
			&p.MemberLimit,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}

	return plans, nil
}

// Upsert inserts or updates a plan keyed by name.
func (s *PlanStore) Upsert(ctx context.Context, plan *models.Plan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.Must(uuid.NewV7())
	}

	query := `
		INSERT INTO plans (plan_id, name, price_ref, description, member_limit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET
			price_ref = EXCLUDED.price_ref,
			description = EXCLUDED.description,
			member_limit = EXCLUDED.member_limit,
			updated_at = NOW()
		RETURNING plan_id, created_at, updated_at
	`

	err := s.pool.QueryRow(ctx, query,
		plan.ID,
		plan.Name,
		plan.PriceRef,
		plan.Description,
		plan.MemberLimit,
	).Scan(&plan.ID, &plan.CreatedAt, &plan.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert plan: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("plan_id", plan.ID.String()).
		Str("name", plan.Name).
		Msg("Upserted plan")

	return nil
}
