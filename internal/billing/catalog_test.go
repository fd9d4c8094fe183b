package billing

import (
	"context"
	"testing"

	"github.com/antiwork/gumboard/internal/store/memory"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
plans:
  - name: Team
    priceRef: price_team
    description: Unlimited members
  - name: Starter
    priceRef: price_starter
    memberLimit: 10
`

func TestParseCatalog(t *testing.T) {
	catalog, err := ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)
	require.Len(t, catalog.Plans, 2)
	require.Equal(t, "price_team", catalog.Plans[0].PriceRef)
	require.Nil(t, catalog.Plans[0].MemberLimit)
	require.Equal(t, 10, *catalog.Plans[1].MemberLimit)
}

func TestParseCatalog_invalid(t *testing.T) {
	tests := map[string]string{
		"missing name":     "plans:\n  - priceRef: p\n",
		"missing price":    "plans:\n  - name: Team\n",
		"duplicate name":   "plans:\n  - name: A\n    priceRef: p\n  - name: A\n    priceRef: q\n",
		"non-positive cap": "plans:\n  - name: A\n    priceRef: p\n    memberLimit: 0\n",
		"not yaml":         "plans: [",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestSyncCatalog_isIdempotent(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewStores()

	catalog, err := ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)

	first, err := SyncCatalog(ctx, stores.Plans, catalog)
	require.NoError(t, err)

	catalog.Plans[0].PriceRef = "price_team_v2"
	second, err := SyncCatalog(ctx, stores.Plans, catalog)
	require.NoError(t, err)

	require.Equal(t, first[0].ID, second[0].ID)

	plans, err := stores.Plans.List(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)

	team, err := stores.Plans.Get(ctx, first[0].ID)
	require.NoError(t, err)
	require.Equal(t, "price_team_v2", team.PriceRef)
}
