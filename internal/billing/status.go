package billing

import "github.com/antiwork/gumboard/internal/models"

// MapStatus converts a provider subscription status into the local enum.
// Unknown values fall back to inactive so a new provider status never fails
// reconciliation.
func MapStatus(status string) models.SubscriptionStatus {
	switch status {
	case "active":
		return models.SubscriptionStatusActive
	case "trialing":
		return models.SubscriptionStatusTrialing
	case "past_due":
		return models.SubscriptionStatusPastDue
	case "canceled":
		return models.SubscriptionStatusCanceled
	case "unpaid":
		return models.SubscriptionStatusUnpaid
	case "incomplete":
		return models.SubscriptionStatusIncomplete
	case "incomplete_expired":
		return models.SubscriptionStatusIncompleteExpired
	case "paused":
		return models.SubscriptionStatusPaused
	default:
		return models.SubscriptionStatusInactive
	}
}
