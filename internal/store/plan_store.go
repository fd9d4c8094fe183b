package store

import (
	"context"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/google/uuid"
)

// PlanStore is the read side of the plan catalog plus the sync write used by
// the plans CLI. Callers must not cache results across requests.
type PlanStore interface {
	// Get retrieves a plan by ID.
	// Returns ErrPlanNotFound if the plan doesn't exist.
	Get(ctx context.Context, planID uuid.UUID) (*models.Plan, error)

	// List returns all plans ordered by name.
	List(ctx context.Context) ([]*models.Plan, error)

	// Upsert inserts or updates a plan keyed by name. The stored ID is written
	// back to plan.ID.
	Upsert(ctx context.Context, plan *models.Plan) error
}
