package memory

import (
	"context"
	"sort"
	"time"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/google/uuid"
)

// PlanStore implements store.PlanStore using in-memory storage.
type PlanStore struct {
	db *DB
}

// NewPlanStore creates a new in-memory plan store.
func NewPlanStore(db *DB) *PlanStore {
	return &PlanStore{db: db}
}

// Get retrieves a plan by ID.
func (s *PlanStore) Get(ctx context.Context, planID uuid.UUID) (*models.Plan, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	plan, exists := s.db.plans[planID]
	if !exists {
		return nil, store.ErrPlanNotFound
	}

	clone := *plan
	return &clone, nil
}

// List returns all plans ordered by name.
func (s *PlanStore) List(ctx context.Context) ([]*models.Plan, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	plans := make([]*models.Plan, 0, len(s.db.plans))
	for _, plan := range s.db.plans {
		clone := *plan
		plans = append(plans, &clone)
	}

	sort.Slice(plans, func(i, j int) bool {
		return plans[i].Name < plans[j].Name
	})

	return plans, nil
}

// Upsert inserts or updates a plan keyed by name.
func (s *PlanStore) Upsert(ctx context.Context, plan *models.Plan) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	now := time.Now()

	for id, existing := range s.db.plans {
		if existing.Name != plan.Name {
			continue
		}
		clone := *plan
		clone.ID = id
		clone.CreatedAt = existing.CreatedAt
		clone.UpdatedAt = now
		s.db.plans[id] = &clone
		plan.ID = id
		return nil
	}

	if plan.ID == uuid.Nil {
		plan.ID = uuid.Must(uuid.NewV7())
	}
	plan.CreatedAt = now
	plan.UpdatedAt = now

	clone := *plan
	s.db.plans[plan.ID] = &clone

	return nil
}
