package billing

import "context"

// Provider is the subset of the payment provider API the service calls.
type Provider interface {
	// GetSubscription fetches the current state of a subscription.
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// CreateCheckoutSession starts a hosted checkout and returns its URL.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)

	// CreatePortalSession opens the hosted billing portal and returns its URL.
	CreatePortalSession(ctx context.Context, customerRef, returnURL string) (string, error)
}

// CheckoutParams describes a subscription checkout.
type CheckoutParams struct {
	PriceRef      string
	CustomerRef   string // reused when the organization already has one
	CustomerEmail string
	SuccessURL    string
	CancelURL     string

	// Metadata is attached to both the session and the resulting subscription
	// so later events can be mapped back to the organization.
	Metadata map[string]string
}
