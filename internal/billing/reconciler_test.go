package billing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/antiwork/gumboard/internal/apperr"
	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/antiwork/gumboard/internal/store/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testWebhookSecret = []byte("whsec_test_secret")

type fakeProvider struct {
	mu            sync.Mutex
	subscriptions map[string]*Subscription
	err           error
	calls         int
	checkout      *CheckoutParams
	portalFor     string
}

func (f *fakeProvider) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return sub, nil
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.checkout = &params
	return "https://checkout.example/session", nil
}

func (f *fakeProvider) CreatePortalSession(ctx context.Context, customerRef, returnURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.portalFor = customerRef
	return "https://portal.example/session", nil
}

// failingOrgStore fails billing writes to exercise compensation.
type failingOrgStore struct {
	store.OrganizationStore
	err error
}

func (f *failingOrgStore) UpdateBilling(ctx context.Context, orgID uuid.UUID, billing models.Billing) error {
	return f.err
}

func (f *failingOrgStore) UpsertBilling(ctx context.Context, org *models.Organization) error {
	return f.err
}

type reconcilerFixture struct {
	stores   store.Stores
	provider *fakeProvider
	rec      *Reconciler
	plan     *models.Plan
	org      *models.Organization
}

func newReconcilerFixture(t *testing.T, cfg ReconcilerConfig) *reconcilerFixture {
	t.Helper()
	ctx := context.Background()

	stores := memory.NewStores()
	plan := &models.Plan{Name: "Team", PriceRef: "price_team"}
	require.NoError(t, stores.Plans.Upsert(ctx, plan))

	org := &models.Organization{ID: uuid.Must(uuid.NewV7()), Name: "Acme"}
	require.NoError(t, stores.Organizations.Create(ctx, org))

	provider := &fakeProvider{subscriptions: map[string]*Subscription{}}
	cfg.WebhookSecret = testWebhookSecret

	return &reconcilerFixture{
		stores:   stores,
		provider: provider,
		rec:      NewReconciler(stores, provider, cfg),
		plan:     plan,
		org:      org,
	}
}

func (f *reconcilerFixture) getOrg(t *testing.T) *models.Organization {
	t.Helper()
	org, err := f.stores.Organizations.Get(context.Background(), f.org.ID)
	require.NoError(t, err)
	return org
}

type testEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object any `json:"object"`
	} `json:"data"`
}

func buildEvent(t *testing.T, id, typ string, created time.Time, object any) ([]byte, string) {
	t.Helper()
	evt := testEvent{ID: id, Type: typ, Created: created.Unix()}
	evt.Data.Object = object

	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	return payload, SignatureHeader(payload, testWebhookSecret, time.Now())
}

func subscriptionObject(id, status string, md map[string]string) map[string]any {
	return map[string]any{
		"id":                 id,
		"customer":           "cus_123",
		"status":             status,
		"current_period_end": time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		"metadata":           md,
	}
}

func invoiceObject(subscriptionID string, md map[string]string) map[string]any {
	return map[string]any{
		"id":           "in_1",
		"customer":     "cus_123",
		"subscription": subscriptionID,
		"subscription_details": map[string]any{
			"metadata": md,
		},
	}
}

func (f *reconcilerFixture) metadata() map[string]string {
	return map[string]string{
		MetadataOrganizationID: f.org.ID.String(),
		MetadataPlanID:         f.plan.ID.String(),
	}
}

func TestReconciler_rejectsBadSignature(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{})
	payload, _ := buildEvent(t, "evt_1", EventSubscriptionUpdated, time.Now(),
		subscriptionObject("sub_1", "active", f.metadata()))

	_, err := f.rec.Handle(context.Background(), payload, "t=1,v1=00")
	require.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))

	_, err = f.stores.WebhookEvents.Get(context.Background(), "evt_1")
	require.ErrorIs(t, err, store.ErrWebhookEventNotFound)
}

func TestReconciler_ignoresUnhandledEvents(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{})
	payload, header := buildEvent(t, "evt_ignored", "charge.refunded", time.Now(), map[string]any{"id": "ch_1"})

	outcome, err := f.rec.Handle(context.Background(), payload, header)
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, outcome)

	_, err = f.stores.WebhookEvents.Get(context.Background(), "evt_ignored")
	require.ErrorIs(t, err, store.ErrWebhookEventNotFound, "unhandled events leave no dedup record")
}

func TestReconciler_subscriptionUpdated(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{})
	created := time.Now().Add(-time.Minute).Truncate(time.Second)
	payload, header := buildEvent(t, "evt_1", EventSubscriptionUpdated, created,
		subscriptionObject("sub_1", "trialing", f.metadata()))

	outcome, err := f.rec.Handle(context.Background(), payload, header)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	org := f.getOrg(t)
	require.Equal(t, models.SubscriptionStatusTrialing, org.Billing.SubscriptionStatus)
	require.Equal(t, "sub_1", *org.Billing.SubscriptionRef)
	require.Equal(t, "cus_123", *org.Billing.CustomerRef)
	require.Equal(t, f.plan.ID, *org.Billing.PlanID)
	require.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), *org.Billing.CurrentPeriodEnd)
	require.True(t, created.Equal(*org.Billing.BillingEventAt))

	record, err := f.stores.WebhookEvents.Get(context.Background(), "evt_1")
	require.NoError(t, err)
	require.NotZero(t, record.PayloadChecksum)
}

func TestReconciler_redeliveryIsIdempotent(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{})
	ctx := context.Background()

	payload, header := buildEvent(t, "evt_dup", EventSubscriptionUpdated, time.Now(),
		subscriptionObject("sub_1", "active", f.metadata()))

	outcome, err := f.rec.Handle(ctx, payload, header)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	first := f.getOrg(t)

	// Change state out of band; the redelivery must not overwrite it.
	billing := first.Billing
	billing.SubscriptionStatus = models.SubscriptionStatusPastDue
	require.NoError(t, f.stores.Organizations.UpdateBilling(ctx, f.org.ID, billing))

	outcome, err = f.rec.Handle(ctx, payload, header)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)
	require.Equal(t, models.SubscriptionStatusPastDue, f.getOrg(t).Billing.SubscriptionStatus)
}

func TestReconciler_concurrentDeliveriesApplyOnce(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{})
	payload, header := buildEvent(t, "evt_race", EventSubscriptionUpdated, time.Now(),
		subscriptionObject("sub_1", "active", f.metadata()))

	const deliveries = 10
	outcomes := make(chan Outcome, deliveries)
	var wg sync.WaitGroup
	for range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.rec.Handle(context.Background(), payload, header)
			if err == nil {
				outcomes <- outcome
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	counts := map[Outcome]int{}
	for o := range outcomes {
		counts[o]++
	}
	require.Equal(t, 1, counts[OutcomeApplied])
	require.Equal(t, deliveries-1, counts[OutcomeDuplicate])
}

func TestReconciler_invalidMetadataLeavesStateUntouched(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{})
	before := f.getOrg(t)

	tests := []struct {
		name string
		typ  string
		obj  map[string]any
	}{
		{
			name: "updated without plan",
			typ:  EventSubscriptionUpdated,
			obj: subscriptionObject("sub_1", "active", map[string]string{
				MetadataOrganizationID: f.org.ID.String(),
			}),
		},
		{
			name: "created with malformed organization",
			typ:  EventSubscriptionCreated,
			obj: subscriptionObject("sub_1", "active", map[string]string{
				MetadataOrganizationID: "not-a-uuid",
				MetadataPlanID:         f.plan.ID.String(),
			}),
		},
		{
			name: "payment succeeded with unknown plan",
			typ:  EventInvoicePaymentSucceeded,
			obj: invoiceObject("sub_1", map[string]string{
				MetadataOrganizationID: f.org.ID.String(),
				MetadataPlanID:         uuid.NewString(),
			}),
		},
		{
			name: "payment failed without organization",
			typ:  EventInvoicePaymentFailed,
			obj:  invoiceObject("sub_1", map[string]string{}),
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eventID := "evt_invalid_" + string(rune('a'+i))
			payload, header := buildEvent(t, eventID, tt.typ, time.Now(), tt.obj)

			_, err := f.rec.Handle(context.Background(), payload, header)
			require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			require.Equal(t, before.Billing, f.getOrg(t).Billing)

			_, err = f.stores.WebhookEvents.Get(context.Background(), eventID)
			require.ErrorIs(t, err, store.ErrWebhookEventNotFound)
		})
	}
	require.Zero(t, f.provider.calls, "provider is never called for invalid events")
}

func TestReconciler_unknownStatusMapsToInactive(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{})
	payload, header := buildEvent(t, "evt_1", EventSubscriptionUpdated, time.Now(),
		subscriptionObject("sub_1", "brand_new_status", f.metadata()))

	_, err := f.rec.Handle(context.Background(), payload, header)
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionStatusInactive, f.getOrg(t).Billing.SubscriptionStatus)
}

func TestReconciler_subscriptionDeleted(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{})
	ctx := context.Background()

	payload, header := buildEvent(t, "evt_1", EventSubscriptionUpdated, time.Now(),
		subscriptionObject("sub_1", "active", f.metadata()))
	_, err := f.rec.Handle(ctx, payload, header)
	require.NoError(t, err)

	payload, header = buildEvent(t, "evt_2", EventSubscriptionDeleted, time.Now(),
		subscriptionObject("sub_1", "canceled", map[string]string{MetadataOrganizationID: f.org.ID.String()}))
	outcome, err := f.rec.Handle(ctx, payload, header)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	org := f.getOrg(t)
	require.Equal(t, models.SubscriptionStatusCanceled, org.Billing.SubscriptionStatus)
	require.Nil(t, org.Billing.SubscriptionRef)
	require.Nil(t, org.Billing.PlanID)
	require.True(t, org.IsFreeTier())
	require.Equal(t, "cus_123", *org.Billing.CustomerRef)
}

func TestReconciler_subscriptionDeletedWithoutOrganizationIsServerError(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{})
	payload, header := buildEvent(t, "evt_1", EventSubscriptionDeleted, time.Now(),
		subscriptionObject("sub_1", "canceled", map[string]string{}))

	_, err := f.rec.Handle(context.Background(), payload, header)
	require.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestReconciler_unknownOrganizationIsServerError(t *testing.T) {
	tests := []struct {
		name   string
		typ    string
		object func(md map[string]string) any
	}{
		{name: "updated", typ: EventSubscriptionUpdated, object: func(md map[string]string) any {
			return subscriptionObject("sub_1", "active", md)
		}},
		{name: "deleted", typ: EventSubscriptionDeleted, object: func(md map[string]string) any {
			return subscriptionObject("sub_1", "canceled", md)
		}},
		{name: "payment failed", typ: EventInvoicePaymentFailed, object: func(md map[string]string) any {
			return invoiceObject("sub_1", md)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcilerFixture(t, ReconcilerConfig{})
			ctx := context.Background()
			md := f.metadata()
			md[MetadataOrganizationID] = uuid.NewString()

			payload, header := buildEvent(t, "evt_1", tt.typ, time.Now(), tt.object(md))

			_, err := f.rec.Handle(ctx, payload, header)
			require.Error(t, err)
			require.Equal(t, apperr.KindInternal, apperr.KindOf(err))
			require.Equal(t, 500, apperr.KindOf(err).HTTPStatus())
			require.Equal(t, apperr.CodeOrganizationMissing, apperr.CodeOf(err))

			// The dedup record is gone so the redelivery is processed again.
			_, err = f.stores.WebhookEvents.Get(ctx, "evt_1")
			require.ErrorIs(t, err, store.ErrWebhookEventNotFound)
		})
	}
}

func TestReconciler_paymentSucceededUpsertsAndInvitesTeam(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{})
	ctx := context.Background()

	f.provider.subscriptions["sub_9"] = &Subscription{
		ID:               "sub_9",
		Customer:         "cus_9",
		Status:           "active",
		CurrentPeriodEnd: time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC).Unix(),
	}

	newOrgID := uuid.Must(uuid.NewV7())
	md := map[string]string{
		MetadataOrganizationID:   newOrgID.String(),
		MetadataOrganizationName: "Fresh Org",
		MetadataPlanID:           f.plan.ID.String(),
		MetadataTeamEmails:       "a@example.com, B@example.com, not-an-email",
	}
	payload, header := buildEvent(t, "evt_paid", EventInvoicePaymentSucceeded, time.Now(), invoiceObject("sub_9", md))

	outcome, err := f.rec.Handle(ctx, payload, header)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	org, err := f.stores.Organizations.Get(ctx, newOrgID)
	require.NoError(t, err)
	require.Equal(t, "Fresh Org", org.Name)
	require.Equal(t, models.SubscriptionStatusActive, org.Billing.SubscriptionStatus)
	require.Equal(t, "cus_9", *org.Billing.CustomerRef)
	require.Equal(t, "sub_9", *org.Billing.SubscriptionRef)
	require.Equal(t, f.plan.ID, *org.Billing.PlanID)

	invites, err := f.stores.Invites.ListByOrganization(ctx, newOrgID)
	require.NoError(t, err)
	require.Len(t, invites, 2)

	// A later payment for the same checkout does not duplicate invites.
	payload, header = buildEvent(t, "evt_paid_2", EventInvoicePaymentSucceeded, time.Now(), invoiceObject("sub_9", md))
	_, err = f.rec.Handle(ctx, payload, header)
	require.NoError(t, err)

	pending, err := f.stores.Invites.CountPending(ctx, newOrgID)
	require.NoError(t, err)
	require.Equal(t, 2, pending)
}

func TestReconciler_paymentFailedMarksPastDue(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{})
	payload, header := buildEvent(t, "evt_failed", EventInvoicePaymentFailed, time.Now(),
		invoiceObject("sub_1", map[string]string{MetadataOrganizationID: f.org.ID.String()}))

	_, err := f.rec.Handle(context.Background(), payload, header)
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionStatusPastDue, f.getOrg(t).Billing.SubscriptionStatus)
}

func TestReconciler_providerFailureCompensates(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{})
	ctx := context.Background()
	f.provider.err = errors.New("provider unavailable")

	payload, header := buildEvent(t, "evt_paid", EventInvoicePaymentSucceeded, time.Now(), invoiceObject("sub_1", f.metadata()))

	_, err := f.rec.Handle(ctx, payload, header)
	require.Equal(t, apperr.KindTransientProvider, apperr.KindOf(err))
	require.Equal(t, 500, apperr.KindOf(err).HTTPStatus())

	_, err = f.stores.WebhookEvents.Get(ctx, "evt_paid")
	require.ErrorIs(t, err, store.ErrWebhookEventNotFound, "dedup record removed so redelivery can retry")

	// Redelivery after the provider recovers is applied.
	f.provider.err = nil
	f.provider.subscriptions["sub_1"] = &Subscription{ID: "sub_1", Customer: "cus_123", Status: "active"}

	outcome, err := f.rec.Handle(ctx, payload, header)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
}

func TestReconciler_storeFailureCompensates(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{})
	ctx := context.Background()

	stores := f.stores
	stores.Organizations = &failingOrgStore{OrganizationStore: f.stores.Organizations, err: errors.New("disk full")}
	rec := NewReconciler(stores, f.provider, ReconcilerConfig{WebhookSecret: testWebhookSecret})

	payload, header := buildEvent(t, "evt_1", EventSubscriptionUpdated, time.Now(),
		subscriptionObject("sub_1", "active", f.metadata()))

	_, err := rec.Handle(ctx, payload, header)
	require.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	_, err = f.stores.WebhookEvents.Get(ctx, "evt_1")
	require.ErrorIs(t, err, store.ErrWebhookEventNotFound)
}

func TestReconciler_strictOrderingSkipsStaleEvents(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for _, strict := range []bool{false, true} {
		f := newReconcilerFixture(t, ReconcilerConfig{StrictOrdering: strict})

		payload, header := buildEvent(t, "evt_new", EventSubscriptionUpdated, now,
			subscriptionObject("sub_1", "active", f.metadata()))
		_, err := f.rec.Handle(ctx, payload, header)
		require.NoError(t, err)

		payload, header = buildEvent(t, "evt_old", EventInvoicePaymentFailed, now.Add(-time.Hour),
			invoiceObject("sub_1", map[string]string{MetadataOrganizationID: f.org.ID.String()}))
		outcome, err := f.rec.Handle(ctx, payload, header)
		require.NoError(t, err)

		if strict {
			require.Equal(t, OutcomeStale, outcome)
			require.Equal(t, models.SubscriptionStatusActive, f.getOrg(t).Billing.SubscriptionStatus)
		} else {
			require.Equal(t, OutcomeApplied, outcome)
			require.Equal(t, models.SubscriptionStatusPastDue, f.getOrg(t).Billing.SubscriptionStatus)
		}
	}
}
