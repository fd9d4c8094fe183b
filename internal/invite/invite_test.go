package invite

import (
	"context"
	"fmt"
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

type fixture struct {
	stores store.Stores
	svc    *Service
	org    *models.Organization
	admin  *models.User
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	stores := memory.NewStores()

	org := &models.Organization{ID: uuid.Must(uuid.NewV7()), Name: "Acme"}
	require.NoError(t, stores.Organizations.Create(ctx, org))

	admin := &models.User{ID: uuid.Must(uuid.NewV7()), Email: "owner@example.com", OrganizationID: &org.ID, IsAdmin: true}
	require.NoError(t, stores.Users.Create(ctx, admin))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(stores, Config{})
	svc.now = func() time.Time { return now }

	return &fixture{stores: stores, svc: svc, org: org, admin: admin, now: now}
}

func (f *fixture) makePaid(t *testing.T, memberLimit *int) {
	t.Helper()
	ctx := context.Background()

	plan := &models.Plan{Name: "Team", PriceRef: "price_team", MemberLimit: memberLimit}
	require.NoError(t, f.stores.Plans.Upsert(ctx, plan))
	require.NoError(t, f.stores.Organizations.UpdateBilling(ctx, f.org.ID, models.Billing{
		SubscriptionStatus: models.SubscriptionStatusActive,
		PlanID:             &plan.ID,
	}))
}

func (f *fixture) selfServe(t *testing.T, limit *int, expiresAt *time.Time) *models.OrganizationSelfServeInvite {
	t.Helper()
	inv, err := f.svc.CreateSelfServe(context.Background(), f.admin.ID, CreateSelfServeParams{
		Name:       "Team link",
		UsageLimit: limit,
		ExpiresAt:  expiresAt,
	})
	require.NoError(t, err)
	return inv
}

func (f *fixture) user(t *testing.T, email string, orgID *uuid.UUID) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.Must(uuid.NewV7()), Email: email, OrganizationID: orgID}
	require.NoError(t, f.stores.Users.Create(context.Background(), u))
	return u
}

func requireCode(t *testing.T, err error, kind apperr.Kind, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "unexpected kind for %v", err)
	require.Equal(t, code, apperr.CodeOf(err))
}

func TestRedeem_joinsAndCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.selfServe(t, nil, nil)
	u := f.user(t, "new@example.com", nil)

	res, err := f.svc.Redeem(ctx, inv.Token, u.ID)
	require.NoError(t, err)
	require.False(t, res.AlreadyMember)
	require.Equal(t, f.org.ID, res.OrganizationID)

	stored, err := f.stores.Users.Get(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, stored.BelongsTo(f.org.ID))

	got, err := f.stores.SelfServeInvites.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.UsageCount)
}

func TestRedeem_alreadyMemberIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.selfServe(t, intPtr(1), nil)

	for range 3 {
		res, err := f.svc.Redeem(ctx, inv.Token, f.admin.ID)
		require.NoError(t, err)
		require.True(t, res.AlreadyMember)
	}

	got, err := f.stores.SelfServeInvites.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.UsageCount)
}

func TestRedeem_otherOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.selfServe(t, nil, nil)

	other := &models.Organization{ID: uuid.Must(uuid.NewV7()), Name: "Other"}
	require.NoError(t, f.stores.Organizations.Create(ctx, other))
	u := f.user(t, "elsewhere@example.com", &other.ID)

	_, err := f.svc.Redeem(ctx, inv.Token, u.ID)
	requireCode(t, err, apperr.KindConflict, apperr.CodeOtherOrganization)
}

func TestRedeem_tokenStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "new@example.com", nil)

	_, err := f.svc.Redeem(ctx, "does-not-exist", u.ID)
	requireCode(t, err, apperr.KindNotFound, apperr.CodeInviteNotFound)

	deactivated := f.selfServe(t, nil, nil)
	require.NoError(t, f.svc.Deactivate(ctx, f.admin.ID, deactivated.ID))
	_, err = f.svc.Redeem(ctx, deactivated.Token, u.ID)
	requireCode(t, err, apperr.KindConflict, apperr.CodeInviteDeactivated)

	exhausted := f.selfServe(t, intPtr(1), nil)
	_, err = f.svc.RedeemAnonymous(ctx, exhausted.Token, "first@example.com", "")
	require.NoError(t, err)
	_, err = f.svc.Redeem(ctx, exhausted.Token, u.ID)
	requireCode(t, err, apperr.KindConflict, apperr.CodeInviteExhausted)
}

func TestRedeem_expiredAlwaysReportsExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expiresAt := f.now.Add(time.Hour)
	inv := f.selfServe(t, intPtr(1), &expiresAt)
	_, err := f.svc.RedeemAnonymous(ctx, inv.Token, "first@example.com", "")
	require.NoError(t, err)

	// Exhausted and expired: expiry wins.
	later := f.now.Add(2 * time.Hour)
	f.svc.now = func() time.Time { return later }

	u := f.user(t, "late@example.com", nil)
	for range 2 {
		_, err = f.svc.Redeem(ctx, inv.Token, u.ID)
		requireCode(t, err, apperr.KindConflict, apperr.CodeInviteExpired)
	}
}

func TestRedeem_concurrentUsageLimit(t *testing.T) {
	f := newFixture(t)
	f.makePaid(t, nil)
	ctx := context.Background()

	const limit = 5
	const workers = 20
	inv := f.selfServe(t, intPtr(limit), nil)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RedeemAnonymous(ctx, inv.Token, fmt.Sprintf("user%d@example.com", i), "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			if apperr.CodeOf(err) == apperr.CodeInviteExhausted {
				rejected++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, limit, successes)
	require.Equal(t, workers-limit, rejected)

	got, err := f.stores.SelfServeInvites.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, limit, got.UsageCount)

	members, err := f.stores.Users.CountByOrganization(ctx, f.org.ID)
	require.NoError(t, err)
	require.Equal(t, limit+1, members)
}

func TestRedeem_freeTierCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.selfServe(t, nil, nil)

	// Owner plus one member plus one pending invite fills the cap of 3.
	_, err := f.svc.RedeemAnonymous(ctx, inv.Token, "second@example.com", "")
	require.NoError(t, err)
	_, err = f.svc.InviteByEmail(ctx, f.admin.ID, "pending@example.com")
	require.NoError(t, err)

	_, err = f.svc.RedeemAnonymous(ctx, inv.Token, "fourth@example.com", "")
	requireCode(t, err, apperr.KindConflict, apperr.CodeMemberLimitReached)

	_, err = f.svc.InviteByEmail(ctx, f.admin.ID, "another@example.com")
	requireCode(t, err, apperr.KindConflict, apperr.CodeMemberLimitReached)

	got, err := f.stores.SelfServeInvites.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.UsageCount)
}

func TestRedeem_paidPlanBypassesCap(t *testing.T) {
	f := newFixture(t)
	f.makePaid(t, nil)
	ctx := context.Background()
	inv := f.selfServe(t, nil, nil)

	for i := range 5 {
		_, err := f.svc.RedeemAnonymous(ctx, inv.Token, fmt.Sprintf("member%d@example.com", i), "")
		require.NoError(t, err)
	}

	members, err := f.stores.Users.CountByOrganization(ctx, f.org.ID)
	require.NoError(t, err)
	require.Equal(t, 6, members)
}

func TestRedeem_planMemberLimit(t *testing.T) {
	f := newFixture(t)
	f.makePaid(t, intPtr(2))
	ctx := context.Background()
	inv := f.selfServe(t, nil, nil)

	_, err := f.svc.RedeemAnonymous(ctx, inv.Token, "second@example.com", "")
	require.NoError(t, err)

	_, err = f.svc.RedeemAnonymous(ctx, inv.Token, "third@example.com", "")
	requireCode(t, err, apperr.KindConflict, apperr.CodeMemberLimitReached)
}

func TestRedeemAnonymous_createsVerifiedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.selfServe(t, nil, nil)

	res, err := f.svc.RedeemAnonymous(ctx, inv.Token, "  New.Person@Example.com ", "")
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Equal(t, "new.person@example.com", res.User.Email)
	require.Equal(t, "new.person", res.User.Name)
	require.NotNil(t, res.User.EmailVerified)

	stored, err := f.stores.Users.GetByEmail(ctx, "new.person@example.com")
	require.NoError(t, err)
	require.True(t, stored.BelongsTo(f.org.ID))
}

func TestRedeemAnonymous_existingAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.selfServe(t, nil, nil)
	f.user(t, "taken@example.com", nil)

	_, err := f.svc.RedeemAnonymous(ctx, inv.Token, "taken@example.com", "")
	requireCode(t, err, apperr.KindConflict, apperr.CodeAccountExists)

	got, err := f.stores.SelfServeInvites.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.UsageCount)
}

func TestRedeemAnonymous_invalidEmail(t *testing.T) {
	f := newFixture(t)
	inv := f.selfServe(t, nil, nil)

	_, err := f.svc.RedeemAnonymous(context.Background(), inv.Token, "not an email", "")
	requireCode(t, err, apperr.KindValidation, apperr.CodeInviteEmailInvalid)
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	inv := f.selfServe(t, intPtr(10), nil)

	p, err := f.svc.Preview(context.Background(), inv.Token)
	require.NoError(t, err)
	require.Equal(t, "Acme", p.OrganizationName)
	require.Equal(t, models.SelfServeInvitePending, p.State)
	require.Equal(t, 10, *p.UsageLimit)
}

func TestCreateSelfServe_validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := f.now.Add(-time.Minute)

	tests := []struct {
		name   string
		params CreateSelfServeParams
	}{
		{name: "empty name", params: CreateSelfServeParams{Name: "  "}},
		{name: "zero limit", params: CreateSelfServeParams{Name: "x", UsageLimit: intPtr(0)}},
		{name: "past expiry", params: CreateSelfServeParams{Name: "x", ExpiresAt: &past}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateSelfServe(ctx, f.admin.ID, tt.params)
			requireCode(t, err, apperr.KindValidation, apperr.CodeInvalidInput)
		})
	}
}

func TestCreateSelfServe_requiresAdmin(t *testing.T) {
	f := newFixture(t)
	member := f.user(t, "member@example.com", &f.org.ID)

	_, err := f.svc.CreateSelfServe(context.Background(), member.ID, CreateSelfServeParams{Name: "x"})
	requireCode(t, err, apperr.KindAuthorization, apperr.CodeNotAdmin)
}

func TestCreateSelfServe_tokenIsUnique(t *testing.T) {
	f := newFixture(t)

	a := f.selfServe(t, nil, nil)
	b := f.selfServe(t, nil, nil)
	require.NotEqual(t, a.Token, b.Token)
	require.GreaterOrEqual(t, len(a.Token), 20)

	list, err := f.svc.ListSelfServe(context.Background(), f.admin.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestDeactivate_otherOrganizationIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.selfServe(t, nil, nil)

	other := &models.Organization{ID: uuid.Must(uuid.NewV7()), Name: "Other"}
	require.NoError(t, f.stores.Organizations.Create(ctx, other))
	otherAdmin := &models.User{ID: uuid.Must(uuid.NewV7()), Email: "boss@other.example", OrganizationID: &other.ID, IsAdmin: true}
	require.NoError(t, f.stores.Users.Create(ctx, otherAdmin))

	err := f.svc.Deactivate(ctx, otherAdmin.ID, inv.ID)
	requireCode(t, err, apperr.KindNotFound, apperr.CodeInviteNotFound)
}

func TestEmailInvite_acceptAndDecline(t *testing.T) {
	f := newFixture(t)
	f.makePaid(t, nil)
	ctx := context.Background()

	inv, err := f.svc.InviteByEmail(ctx, f.admin.ID, "Joiner@Example.com")
	require.NoError(t, err)
	require.Equal(t, "joiner@example.com", inv.Email)

	_, err = f.svc.InviteByEmail(ctx, f.admin.ID, "joiner@example.com")
	requireCode(t, err, apperr.KindConflict, apperr.CodeInviteDuplicate)

	stranger := f.user(t, "stranger@example.com", nil)
	_, err = f.svc.AcceptInvite(ctx, inv.ID, stranger.ID)
	requireCode(t, err, apperr.KindAuthorization, apperr.CodeInviteWrongEmail)

	joiner := f.user(t, "joiner@example.com", nil)
	u, err := f.svc.AcceptInvite(ctx, inv.ID, joiner.ID)
	require.NoError(t, err)
	require.True(t, u.BelongsTo(f.org.ID))

	_, err = f.svc.AcceptInvite(ctx, inv.ID, joiner.ID)
	requireCode(t, err, apperr.KindConflict, apperr.CodeInviteAlreadyUsed)

	second, err := f.svc.InviteByEmail(ctx, f.admin.ID, "decliner@example.com")
	require.NoError(t, err)
	decliner := f.user(t, "decliner@example.com", nil)
	require.NoError(t, f.svc.DeclineInvite(ctx, second.ID, decliner.ID))

	pending, err := f.stores.Invites.CountPending(ctx, f.org.ID)
	require.NoError(t, err)
	require.Zero(t, pending)

	list, err := f.svc.ListInvites(ctx, f.admin.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestRedeem_settlesPendingEmailInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	link := f.selfServe(t, nil, nil)

	// Owner plus two pending invites fills the free tier.
	_, err := f.svc.InviteByEmail(ctx, f.admin.ID, "anon@example.com")
	require.NoError(t, err)
	_, err = f.svc.InviteByEmail(ctx, f.admin.ID, "member@example.com")
	require.NoError(t, err)

	res, err := f.svc.RedeemAnonymous(ctx, link.Token, "anon@example.com", "")
	require.NoError(t, err)
	require.True(t, res.Created)

	member := f.user(t, "member@example.com", nil)
	_, err = f.svc.Redeem(ctx, link.Token, member.ID)
	require.NoError(t, err)

	pending, err := f.stores.Invites.CountPending(ctx, f.org.ID)
	require.NoError(t, err)
	require.Zero(t, pending)

	members, err := f.stores.Users.CountByOrganization(ctx, f.org.ID)
	require.NoError(t, err)
	require.Equal(t, 3, members)

	for _, email := range []string{"anon@example.com", "member@example.com"} {
		inv, err := f.stores.Invites.GetByEmail(ctx, f.org.ID, email)
		require.NoError(t, err)
		require.Equal(t, models.InviteStatusAccepted, inv.Status)
	}

	_, err = f.svc.RedeemAnonymous(ctx, link.Token, "late@example.com", "")
	requireCode(t, err, apperr.KindConflict, apperr.CodeMemberLimitReached)
}

// answeringSelfServeStore lets a test change an invite right before the
// redemption transaction starts.
type answeringSelfServeStore struct {
	store.SelfServeInviteStore
	before func()
}

func (s answeringSelfServeStore) WithRedemptionTx(ctx context.Context, fn func(ctx context.Context, tx store.RedemptionTx) error) error {
	s.before()
	return s.SelfServeInviteStore.WithRedemptionTx(ctx, fn)
}

func TestAcceptInvite_answeredConcurrentlyLeavesUserOutside(t *testing.T) {
	f := newFixture(t)
	f.makePaid(t, nil)
	ctx := context.Background()

	inv, err := f.svc.InviteByEmail(ctx, f.admin.ID, "joiner@example.com")
	require.NoError(t, err)
	joiner := f.user(t, "joiner@example.com", nil)

	f.svc.selfServe = answeringSelfServeStore{
		SelfServeInviteStore: f.stores.SelfServeInvites,
		before: func() {
			require.NoError(t, f.stores.Invites.UpdateStatus(ctx, inv.ID, models.InviteStatusDeclined))
		},
	}

	_, err = f.svc.AcceptInvite(ctx, inv.ID, joiner.ID)
	requireCode(t, err, apperr.KindConflict, apperr.CodeInviteAlreadyUsed)

	stored, err := f.stores.Users.Get(ctx, joiner.ID)
	require.NoError(t, err)
	require.Nil(t, stored.OrganizationID)

	got, err := f.stores.Invites.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, models.InviteStatusDeclined, got.Status)
}

func intPtr(v int) *int { return &v }
