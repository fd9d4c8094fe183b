package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/antiwork/gumboard"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Billing webhook metrics
	WebhookEventsTotal     metric.Int64Counter
	WebhookDuplicatesTotal metric.Int64Counter
	WebhookIgnoredTotal    metric.Int64Counter
	WebhookFailuresTotal   metric.Int64Counter
	WebhookCompensations   metric.Int64Counter
	WebhookApplyDuration   metric.Float64Histogram

	// Payment provider metrics
	ProviderCallsTotal   metric.Int64Counter
	ProviderRetriesTotal metric.Int64Counter
	ProviderCallDuration metric.Float64Histogram

	// Invite metrics
	RedemptionsTotal        metric.Int64Counter
	RedemptionRejectedTotal metric.Int64Counter
	InvitesCreatedTotal     metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// Add increments counter by one with the given attributes. Nil counters are
// ignored so callers never need to guard against a failed registration.
func Add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Billing webhook metrics
	m.WebhookEventsTotal, _ = meter.Int64Counter(
		"gumboard.billing.webhook.events.total",
		metric.WithDescription("Total number of billing events applied to organizations"),
		metric.WithUnit("{event}"),
	)

	m.WebhookDuplicatesTotal, _ = meter.Int64Counter(
		"gumboard.billing.webhook.duplicates.total",
		metric.WithDescription("Total number of redelivered billing events acknowledged without effect"),
		metric.WithUnit("{event}"),
	)

	m.WebhookIgnoredTotal, _ = meter.Int64Counter(
		"gumboard.billing.webhook.ignored.total",
		metric.WithDescription("Total number of billing events outside the handled set or superseded"),
		metric.WithUnit("{event}"),
	)

	m.WebhookFailuresTotal, _ = meter.Int64Counter(
		"gumboard.billing.webhook.failures.total",
		metric.WithDescription("Total number of rejected or failed billing events"),
		metric.WithUnit("{error}"),
	)

	m.WebhookCompensations, _ = meter.Int64Counter(
		"gumboard.billing.webhook.compensations.total",
		metric.WithDescription("Total number of dedup records removed after a failed apply"),
		metric.WithUnit("{event}"),
	)

	m.WebhookApplyDuration, _ = meter.Float64Histogram(
		"gumboard.billing.webhook.apply.duration",
		metric.WithDescription("Duration of billing event handling"),
		metric.WithUnit("ms"),
	)

	// Payment provider metrics
	m.ProviderCallsTotal, _ = meter.Int64Counter(
		"gumboard.billing.provider.calls.total",
		metric.WithDescription("Total number of payment provider API calls"),
		metric.WithUnit("{call}"),
	)

	m.ProviderRetriesTotal, _ = meter.Int64Counter(
		"gumboard.billing.provider.retries.total",
		metric.WithDescription("Total number of retried payment provider API calls"),
		metric.WithUnit("{retry}"),
	)

	m.ProviderCallDuration, _ = meter.Float64Histogram(
		"gumboard.billing.provider.call.duration",
		metric.WithDescription("Duration of payment provider API calls including retries"),
		metric.WithUnit("ms"),
	)

	// Invite metrics
	m.RedemptionsTotal, _ = meter.Int64Counter(
		"gumboard.invites.redemptions.total",
		metric.WithDescription("Total number of successful invite redemptions"),
		metric.WithUnit("{redemption}"),
	)

	m.RedemptionRejectedTotal, _ = meter.Int64Counter(
		"gumboard.invites.redemptions.rejected.total",
		metric.WithDescription("Total number of rejected invite redemptions"),
		metric.WithUnit("{redemption}"),
	)

	m.InvitesCreatedTotal, _ = meter.Int64Counter(
		"gumboard.invites.created.total",
		metric.WithDescription("Total number of invites created"),
		metric.WithUnit("{invite}"),
	)

	return m
}
