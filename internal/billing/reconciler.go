package billing

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/antiwork/gumboard/internal/apperr"
	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/antiwork/gumboard/internal/telemetry"
	"github.com/google/uuid"
	"github.com/minio/crc64nvme"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Outcome describes what happened to an acknowledged event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeStale     Outcome = "stale"
)

// ReconcilerConfig configures webhook handling.
type ReconcilerConfig struct {
	WebhookSecret      []byte
	SignatureTolerance time.Duration

	// StrictOrdering drops subscription updates, deletions and payment
	// failures older than the last applied event for the organization.
	StrictOrdering bool
}

// Reconciler applies payment provider events to organization billing state.
type Reconciler struct {
	cfg      ReconcilerConfig
	orgs     store.OrganizationStore
	plans    store.PlanStore
	invites  store.InviteStore
	events   store.WebhookEventStore
	provider Provider
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// NewReconciler creates a reconciler over the given stores.
func NewReconciler(stores store.Stores, provider Provider, cfg ReconcilerConfig) *Reconciler {
	if cfg.SignatureTolerance == 0 {
		cfg.SignatureTolerance = DefaultSignatureTolerance
	}
	return &Reconciler{
		cfg:      cfg,
		orgs:     stores.Organizations,
		plans:    stores.Plans,
		invites:  stores.Invites,
		events:   stores.WebhookEvents,
		provider: provider,
		metrics:  telemetry.GetMetrics(),
		now:      time.Now,
	}
}

// Handle verifies, filters, deduplicates and applies one delivery. A nil
// error means the delivery must be acknowledged with {received: true}.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signatureHeader string) (Outcome, error) {
	started := r.now()
	defer func() {
		if r.metrics.WebhookApplyDuration != nil {
			r.metrics.WebhookApplyDuration.Record(ctx, float64(time.Since(started).Milliseconds()))
		}
	}()

	if err := VerifySignature(payload, signatureHeader, r.cfg.WebhookSecret, r.cfg.SignatureTolerance, r.now()); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Rejected billing webhook signature")
		telemetry.Add(ctx, r.metrics.WebhookFailuresTotal, attribute.String("kind", apperr.KindAuthentication.String()))
		return "", apperr.Wrap(apperr.KindAuthentication, apperr.CodeInvalidSignature, "Invalid signature", err)
	}

	evt, err := ParseEvent(payload)
	if err != nil {
		telemetry.Add(ctx, r.metrics.WebhookFailuresTotal, attribute.String("kind", apperr.KindValidation.String()))
		return "", apperr.Wrap(apperr.KindValidation, apperr.CodeInvalidPayload, "Invalid event payload", err)
	}

	logger := zerolog.Ctx(ctx).With().
		Str("event_id", evt.ID).
		Str("event_type", evt.Type).
		Logger()
	ctx = logger.WithContext(ctx)

	if !IsHandled(evt.Type) {
		logger.Debug().Msg("Ignoring unhandled billing event")
		telemetry.Add(ctx, r.metrics.WebhookIgnoredTotal, attribute.String("type", evt.Type))
		return OutcomeIgnored, nil
	}

	record := &models.WebhookEvent{
		EventID:         evt.ID,
		Type:            evt.Type,
		PayloadChecksum: checksum(payload),
	}
	if err := r.events.Create(ctx, record); err != nil {
		if errors.Is(err, store.ErrWebhookEventExists) {
			logger.Info().Msg("Billing event already processed")
			telemetry.Add(ctx, r.metrics.WebhookDuplicatesTotal, attribute.String("type", evt.Type))
			return OutcomeDuplicate, nil
		}
		telemetry.Add(ctx, r.metrics.WebhookFailuresTotal, attribute.String("kind", apperr.KindInternal.String()))
		return "", apperr.Internal("Failed to record billing event", err)
	}

	outcome, err := r.apply(ctx, evt)
	if err != nil {
		r.compensate(ctx, evt.ID)
		logger.Error().Err(err).Msg("Failed to apply billing event")
		telemetry.Add(ctx, r.metrics.WebhookFailuresTotal,
			attribute.String("kind", apperr.KindOf(err).String()),
			attribute.String("type", evt.Type))
		return "", applyFailure(err)
	}

	switch outcome {
	case OutcomeStale:
		logger.Info().Msg("Skipped out of order billing event")
		telemetry.Add(ctx, r.metrics.WebhookIgnoredTotal, attribute.String("type", evt.Type))
	default:
		logger.Info().Msg("Applied billing event")
		telemetry.Add(ctx, r.metrics.WebhookEventsTotal, attribute.String("type", evt.Type))
	}

	return outcome, nil
}

// compensate removes the dedup record so the provider's redelivery is
// processed again. Failures are logged and otherwise ignored.
func (r *Reconciler) compensate(ctx context.Context, eventID string) {
	ctx = context.WithoutCancel(ctx)
	if err := r.events.Delete(ctx, eventID); err != nil && !errors.Is(err, store.ErrWebhookEventNotFound) {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to remove billing event record after failure")
		return
	}
	telemetry.Add(ctx, r.metrics.WebhookCompensations)
}

func (r *Reconciler) apply(ctx context.Context, evt *Event) (Outcome, error) {
	switch evt.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return r.applySubscriptionChange(ctx, evt)
	case EventSubscriptionDeleted:
		return r.applySubscriptionDeleted(ctx, evt)
	case EventInvoicePaymentSucceeded:
		return r.applyPaymentSucceeded(ctx, evt)
	case EventInvoicePaymentFailed:
		return r.applyPaymentFailed(ctx, evt)
	default:
		return OutcomeIgnored, nil
	}
}

func (r *Reconciler) applySubscriptionChange(ctx context.Context, evt *Event) (Outcome, error) {
	sub, err := evt.DecodeSubscription()
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, apperr.CodeInvalidPayload, "Invalid subscription object", err)
	}

	orgID, planID, err := r.requireMetadata(ctx, sub.Metadata)
	if err != nil {
		return "", err
	}

	org, err := r.loadOrganization(ctx, orgID)
	if err != nil {
		return "", err
	}
	if r.stale(org, evt) {
		return OutcomeStale, nil
	}

	billing := org.Billing
	if sub.Customer != "" {
		billing.CustomerRef = &sub.Customer
	}
	billing.SubscriptionRef = &sub.ID
	billing.CurrentPeriodEnd = sub.PeriodEnd()
	billing.SubscriptionStatus = MapStatus(sub.Status)
	billing.PlanID = &planID
	billing.BillingEventAt = laterOf(billing.BillingEventAt, evt.CreatedAt())

	return OutcomeApplied, r.updateBilling(ctx, orgID, billing)
}

func (r *Reconciler) applySubscriptionDeleted(ctx context.Context, evt *Event) (Outcome, error) {
	sub, err := evt.DecodeSubscription()
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, apperr.CodeInvalidPayload, "Invalid subscription object", err)
	}

	orgID, present, err := metadataUUID(sub.Metadata, MetadataOrganizationID)
	if err != nil {
		return "", apperr.Validation(apperr.CodeMissingMetadata, "Invalid organization metadata").
			WithDetail("field", MetadataOrganizationID)
	}
	if !present {
		// A subscription created by checkout always carries the organization,
		// so its absence here is a server side inconsistency.
		return "", apperr.Internal("Subscription is missing organization metadata", nil).
			WithDetail("field", MetadataOrganizationID)
	}

	org, err := r.loadOrganization(ctx, orgID)
	if err != nil {
		return "", err
	}
	if r.stale(org, evt) {
		return OutcomeStale, nil
	}

	billing := org.Billing
	billing.SubscriptionRef = nil
	billing.PlanID = nil
	billing.SubscriptionStatus = models.SubscriptionStatusCanceled
	billing.BillingEventAt = laterOf(billing.BillingEventAt, evt.CreatedAt())

	return OutcomeApplied, r.updateBilling(ctx, orgID, billing)
}

func (r *Reconciler) applyPaymentSucceeded(ctx context.Context, evt *Event) (Outcome, error) {
	inv, err := evt.DecodeInvoice()
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, apperr.CodeInvalidPayload, "Invalid invoice object", err)
	}

	md := inv.EventMetadata()
	orgID, planID, err := r.requireMetadata(ctx, md)
	if err != nil {
		return "", err
	}
	if inv.Subscription == "" {
		return "", apperr.Validation(apperr.CodeInvalidPayload, "Invoice has no subscription").
			WithDetail("field", "subscription")
	}

	sub, err := r.provider.GetSubscription(ctx, inv.Subscription)
	if err != nil {
		return "", apperr.TransientProvider("Failed to fetch subscription", err)
	}

	org := &models.Organization{
		ID:   orgID,
		Name: md[MetadataOrganizationName],
	}

	existing, err := r.orgs.Get(ctx, orgID)
	switch {
	case err == nil:
		org.Name = existing.Name
		org.Billing.BillingEventAt = existing.Billing.BillingEventAt
	case errors.Is(err, store.ErrOrganizationNotFound):
	default:
		return "", apperr.Internal("Failed to load organization", err)
	}

	customer := sub.Customer
	if customer == "" {
		customer = inv.Customer
	}
	org.Billing.CustomerRef = &customer
	org.Billing.SubscriptionRef = &sub.ID
	org.Billing.CurrentPeriodEnd = sub.PeriodEnd()
	org.Billing.SubscriptionStatus = MapStatus(sub.Status)
	org.Billing.PlanID = &planID
	org.Billing.BillingEventAt = laterOf(org.Billing.BillingEventAt, evt.CreatedAt())

	if err := r.orgs.UpsertBilling(ctx, org); err != nil {
		return "", apperr.Internal("Failed to upsert organization billing", err)
	}

	if err := r.inviteTeam(ctx, orgID, md); err != nil {
		return "", err
	}

	return OutcomeApplied, nil
}

func (r *Reconciler) applyPaymentFailed(ctx context.Context, evt *Event) (Outcome, error) {
	inv, err := evt.DecodeInvoice()
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, apperr.CodeInvalidPayload, "Invalid invoice object", err)
	}

	orgID, present, err := metadataUUID(inv.EventMetadata(), MetadataOrganizationID)
	if err != nil || !present {
		return "", apperr.Validation(apperr.CodeMissingMetadata, "Missing organization metadata").
			WithDetail("field", MetadataOrganizationID)
	}

	org, err := r.loadOrganization(ctx, orgID)
	if err != nil {
		return "", err
	}
	if r.stale(org, evt) {
		return OutcomeStale, nil
	}

	billing := org.Billing
	billing.SubscriptionStatus = models.SubscriptionStatusPastDue
	billing.BillingEventAt = laterOf(billing.BillingEventAt, evt.CreatedAt())

	return OutcomeApplied, r.updateBilling(ctx, orgID, billing)
}

// requireMetadata validates organizationId and planId, and re-reads the plan.
func (r *Reconciler) requireMetadata(ctx context.Context, md map[string]string) (uuid.UUID, uuid.UUID, error) {
	orgID, present, err := metadataUUID(md, MetadataOrganizationID)
	if err != nil || !present {
		return uuid.Nil, uuid.Nil, apperr.Validation(apperr.CodeMissingMetadata, "Missing organization metadata").
			WithDetail("field", MetadataOrganizationID)
	}

	planID, present, err := metadataUUID(md, MetadataPlanID)
	if err != nil || !present {
		return uuid.Nil, uuid.Nil, apperr.Validation(apperr.CodeMissingMetadata, "Missing plan metadata").
			WithDetail("field", MetadataPlanID)
	}

	if _, err := r.plans.Get(ctx, planID); err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return uuid.Nil, uuid.Nil, apperr.Validation(apperr.CodePlanMissing, "Unknown plan").
				WithDetail("planId", planID.String())
		}
		return uuid.Nil, uuid.Nil, apperr.Internal("Failed to load plan", err)
	}

	return orgID, planID, nil
}

func (r *Reconciler) loadOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	org, err := r.orgs.Get(ctx, orgID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return nil, apperr.Wrap(apperr.KindInternal, apperr.CodeOrganizationMissing, "Organization not found", err).
				WithDetail("organizationId", orgID.String())
		}
		return nil, apperr.Internal("Failed to load organization", err)
	}
	return org, nil
}

func (r *Reconciler) updateBilling(ctx context.Context, orgID uuid.UUID, billing models.Billing) error {
	if err := r.orgs.UpdateBilling(ctx, orgID, billing); err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return apperr.Wrap(apperr.KindInternal, apperr.CodeOrganizationMissing, "Organization not found", err).
				WithDetail("organizationId", orgID.String())
		}
		return apperr.Internal("Failed to update organization billing", err)
	}
	return nil
}

func (r *Reconciler) stale(org *models.Organization, evt *Event) bool {
	if !r.cfg.StrictOrdering || org.Billing.BillingEventAt == nil {
		return false
	}
	return evt.CreatedAt().Before(*org.Billing.BillingEventAt)
}

// inviteTeam turns the team emails captured at checkout into pending invites.
func (r *Reconciler) inviteTeam(ctx context.Context, orgID uuid.UUID, md map[string]string) error {
	emails := SplitEmails(md[MetadataTeamEmails])
	if len(emails) == 0 {
		return nil
	}

	invitedBy, _, err := metadataUUID(md, MetadataUserID)
	if err != nil {
		invitedBy = uuid.Nil
	}

	for _, email := range emails {
		if _, err := mail.ParseAddress(email); err != nil {
			zerolog.Ctx(ctx).Warn().Str("email", email).Msg("Skipping invalid team email")
			continue
		}

		invite := &models.OrganizationInvite{
			ID:             uuid.Must(uuid.NewV7()),
			Email:          email,
			OrganizationID: orgID,
			InvitedBy:      invitedBy,
			Status:         models.InviteStatusPending,
		}
		if err := r.invites.Create(ctx, invite); err != nil {
			if errors.Is(err, store.ErrInviteAlreadyExists) {
				continue
			}
			return apperr.Internal("Failed to create team invite", err)
		}
		telemetry.Add(ctx, r.metrics.InvitesCreatedTotal, attribute.String("source", "checkout"))
	}

	return nil
}

// applyFailure turns an apply error into a server error so the provider
// redelivers the event. Only malformed payloads and metadata stay client errors.
func applyFailure(err error) error {
	ae, ok := apperr.As(err)
	if !ok {
		return apperr.Internal("Failed to apply billing event", err)
	}
	switch ae.Kind {
	case apperr.KindValidation, apperr.KindTransientProvider, apperr.KindInternal:
		return ae
	default:
		out := apperr.Wrap(apperr.KindInternal, ae.Code, ae.Msg, ae)
		for k, v := range ae.Details {
			out = out.WithDetail(k, v)
		}
		return out
	}
}

func laterOf(current *time.Time, t time.Time) *time.Time {
	if current != nil && current.After(t) {
		return current
	}
	return &t
}

func checksum(payload []byte) uint64 {
	h := crc64nvme.New()
	_, _ = h.Write(payload)
	return h.Sum64()
}
