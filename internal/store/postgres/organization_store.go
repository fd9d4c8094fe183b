package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
// It shares the connection pool with other stores.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{
		pool: pool,
	}
}

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (
			org_id, name, customer_ref, subscription_ref, current_period_end,
			subscription_status, plan_id, billing_event_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	if org.Billing.SubscriptionStatus == "" {
		org.Billing.SubscriptionStatus = models.SubscriptionStatusInactive
	}

	_, err := s.pool.Exec(ctx, query,
		org.ID,
		org.Name,
		org.Billing.CustomerRef,
		org.Billing.SubscriptionRef,
		org.Billing.CurrentPeriodEnd,
		string(org.Billing.SubscriptionStatus),
		org.Billing.PlanID,
		org.Billing.BillingEventAt,
		org.CreatedAt,
		org.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", org.ID.String()).
		Str("name", org.Name).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	query := `
		SELECT
			org_id, name, customer_ref, subscription_ref, current_period_end,
			subscription_status, plan_id, billing_event_at, created_at, updated_at
		FROM organizations
		WHERE org_id = $1
	`

	var org models.Organization
	var status string
	err := s.pool.QueryRow(ctx, query, orgID).Scan(
		&org.ID,
		&org.Name,
		&org.Billing.CustomerRef,
		&org.Billing.SubscriptionRef,
		&org.Billing.CurrentPeriodEnd,
		&status,
		&org.Billing.PlanID,
		&org.Billing.BillingEventAt,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err))
	}

	org.Billing.SubscriptionStatus = models.SubscriptionStatus(status)

	return &org, nil
}

// Update updates the name of an existing organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	org.UpdatedAt = time.Now()

	query := `
		UPDATE organizations SET
			name = $2,
			updated_at = $3
		WHERE org_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		org.ID,
		org.Name,
		org.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Debug().
		Str("org_id", org.ID.String()).
		Msg("Updated organization")

	return nil
}

// UpdateBilling replaces the billing fields of an existing organization.
func (s *OrganizationStore) UpdateBilling(ctx context.Context, orgID uuid.UUID, billing models.Billing) error {
	query := `
		UPDATE organizations SET
			customer_ref = $2,
			subscription_ref = $3,
			current_period_end = $4,
			subscription_status = $5,
			plan_id = $6,
			billing_event_at = $7,
			updated_at = NOW()
		WHERE org_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		orgID,
		billing.CustomerRef,
		billing.SubscriptionRef,
		billing.CurrentPeriodEnd,
		string(billing.SubscriptionStatus),
		billing.PlanID,
		billing.BillingEventAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update organization billing: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Debug().
		Str("org_id", orgID.String()).
		Str("status", string(billing.SubscriptionStatus)).
		Msg("Updated organization billing")

	return nil
}

// UpsertBilling writes billing fields, inserting the organization row if it
// does not exist yet. The name is only used on insert.
func (s *OrganizationStore) UpsertBilling(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (
			org_id, name, customer_ref, subscription_ref, current_period_end,
			subscription_status, plan_id, billing_event_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
		ON CONFLICT (org_id) DO UPDATE SET
			customer_ref = EXCLUDED.customer_ref,
			subscription_ref = EXCLUDED.subscription_ref,
			current_period_end = EXCLUDED.current_period_end,
			subscription_status = EXCLUDED.subscription_status,
			plan_id = EXCLUDED.plan_id,
			billing_event_at = EXCLUDED.billing_event_at,
			updated_at = NOW()
	`

	_, err := s.pool.Exec(ctx, query,
		org.ID,
		org.Name,
		org.Billing.CustomerRef,
		org.Billing.SubscriptionRef,
		org.Billing.CurrentPeriodEnd,
		string(org.Billing.SubscriptionStatus),
		org.Billing.PlanID,
		org.Billing.BillingEventAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert organization billing: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", org.ID.String()).
		Str("status", string(org.Billing.SubscriptionStatus)).
		Msg("Upserted organization billing")

	return nil
}

// Delete deletes an organization by ID.
// Invites cascade; members are detached via ON DELETE SET NULL.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	query := `DELETE FROM organizations WHERE org_id = $1`

	result, err := s.pool.Exec(ctx, query, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Info().
		Str("org_id", orgID.String()).
		Msg("Deleted organization")

	return nil
}
