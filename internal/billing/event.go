package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types handled by the reconciler. Everything else is acknowledged and dropped.
const (
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

// Metadata keys written at checkout and read back from events.
const (
	MetadataOrganizationID   = "organizationId"
	MetadataOrganizationName = "organizationName"
	MetadataPlanID           = "planId"
	MetadataTeamEmails       = "teamEmails"
	MetadataUserID           = "userId"
)

var handledEvents = map[string]bool{
	EventSubscriptionCreated:     true,
	EventSubscriptionUpdated:     true,
	EventSubscriptionDeleted:     true,
	EventInvoicePaymentSucceeded: true,
	EventInvoicePaymentFailed:    true,
}

// IsHandled reports whether events of this type change organization state.
func IsHandled(eventType string) bool {
	return handledEvents[eventType]
}

// Event is the provider's delivery envelope.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CreatedAt returns the provider timestamp of the event.
func (e *Event) CreatedAt() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

// Subscription is the provider subscription view used by reconciliation.
type Subscription struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
}

// PeriodEnd returns the current period end, nil when unset.
func (s *Subscription) PeriodEnd() *time.Time {
	if s.CurrentPeriodEnd == 0 {
		return nil
	}
	t := time.Unix(s.CurrentPeriodEnd, 0).UTC()
	return &t
}

// Invoice is the subset of the provider invoice object the reconciler reads.
type Invoice struct {
	ID                  string            `json:"id"`
	Customer            string            `json:"customer"`
	Subscription        string            `json:"subscription"`
	Metadata            map[string]string `json:"metadata"`
	SubscriptionDetails struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
}

// EventMetadata returns the checkout metadata carried by the invoice. The
// subscription details take precedence over invoice level metadata.
func (i *Invoice) EventMetadata() map[string]string {
	if len(i.SubscriptionDetails.Metadata) > 0 {
		return i.SubscriptionDetails.Metadata
	}
	return i.Metadata
}

// ParseEvent decodes an event envelope.
func ParseEvent(payload []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if evt.ID == "" || evt.Type == "" {
		return nil, fmt.Errorf("event id and type are required")
	}
	return &evt, nil
}

// DecodeSubscription decodes the event object as a subscription.
func (e *Event) DecodeSubscription() (*Subscription, error) {
	var sub Subscription
	if err := json.Unmarshal(e.Data.Object, &sub); err != nil {
		return nil, fmt.Errorf("failed to decode subscription: %w", err)
	}
	return &sub, nil
}

// DecodeInvoice decodes the event object as an invoice.
func (e *Event) DecodeInvoice() (*Invoice, error) {
	var inv Invoice
	if err := json.Unmarshal(e.Data.Object, &inv); err != nil {
		return nil, fmt.Errorf("failed to decode invoice: %w", err)
	}
	return &inv, nil
}

// metadataUUID reads a UUID metadata value. present is false when the key is
// missing or blank.
func metadataUUID(md map[string]string, key string) (id uuid.UUID, present bool, err error) {
	raw := strings.TrimSpace(md[key])
	if raw == "" {
		return uuid.Nil, false, nil
	}
	id, err = uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, true, fmt.Errorf("metadata %s is not a valid id", key)
	}
	return id, true, nil
}

// SplitEmails parses a comma separated email list, lower-casing and dropping
// blanks and duplicates.
func SplitEmails(raw string) []string {
	seen := make(map[string]bool)
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		email := strings.ToLower(strings.TrimSpace(part))
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		out = append(out, email)
	}
	return out
}
