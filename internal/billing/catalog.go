package billing

import (
	"context"
	"fmt"
	"os"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// CatalogEntry is one plan in a catalog file.
type CatalogEntry struct {
	Name        string `yaml:"name"`
	PriceRef    string `yaml:"priceRef"`
	Description string `yaml:"description"`
	MemberLimit *int   `yaml:"memberLimit"`
}

// Catalog is the on-disk plan catalog.
type Catalog struct {
	Plans []CatalogEntry `yaml:"plans"`
}

// LoadCatalog reads and validates a YAML plan catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML plan catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	seen := make(map[string]bool)
	for i, entry := range catalog.Plans {
		if entry.Name == "" {
			return nil, fmt.Errorf("plan %d: name is required", i)
		}
		if entry.PriceRef == "" {
			return nil, fmt.Errorf("plan %q: priceRef is required", entry.Name)
		}
		if entry.MemberLimit != nil && *entry.MemberLimit <= 0 {
			return nil, fmt.Errorf("plan %q: memberLimit must be positive", entry.Name)
		}
		if seen[entry.Name] {
			return nil, fmt.Errorf("plan %q: duplicate name", entry.Name)
		}
		seen[entry.Name] = true
	}

	return &catalog, nil
}

// SyncCatalog upserts every catalog entry by name. Plans missing from the
// catalog are left untouched since organizations may still reference them.
func SyncCatalog(ctx context.Context, plans store.PlanStore, catalog *Catalog) ([]*models.Plan, error) {
	synced := make([]*models.Plan, 0, len(catalog.Plans))
	for _, entry := range catalog.Plans {
		plan := &models.Plan{
			Name:        entry.Name,
			PriceRef:    entry.PriceRef,
			Description: entry.Description,
			MemberLimit: entry.MemberLimit,
		}
		if err := plans.Upsert(ctx, plan); err != nil {
			return synced, fmt.Errorf("failed to sync plan %q: %w", entry.Name, err)
		}

		log.Info().
			Str("plan_id", plan.ID.String()).
			Str("name", plan.Name).
			Str("price_ref", plan.PriceRef).
			Msg("Synced plan")

		synced = append(synced, plan)
	}
	return synced, nil
}
