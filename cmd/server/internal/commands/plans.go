package commands

import (
	"context"
	"fmt"

	"github.com/antiwork/gumboard/internal/billing"
	"github.com/antiwork/gumboard/internal/logger"
)

type PlansCmd struct {
	Sync PlansSyncCmd `cmd:"" help:"Upsert plans from a YAML catalog file"`
}

type PlansSyncCmd struct {
	File  string     `help:"path to the plan catalog" default:"plans.yaml" type:"existingfile" env:"GUMBOARD_PLANS_FILE"`
	Store StoreFlags `embed:""`
}

func (c *PlansSyncCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx = log.WithContext(ctx)

	catalog, err := billing.LoadCatalog(c.File)
	if err != nil {
		return err
	}

	opened, err := c.Store.open(ctx, log)
	if err != nil {
		return err
	}
	defer opened.Close()

	plans, err := billing.SyncCatalog(ctx, opened.stores.Plans, catalog)
	if err != nil {
		return fmt.Errorf("failed to sync plans: %w", err)
	}

	for _, p := range plans {
		log.Info().Str("plan_id", p.ID.String()).Str("name", p.Name).Str("price_ref", p.PriceRef).Msg("Synced plan")
	}
	return nil
}
