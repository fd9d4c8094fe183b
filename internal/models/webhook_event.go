package models

import "time"

// WebhookEvent is the dedup record for a payment provider event.
// Its existence means the event was applied or is being applied.
type WebhookEvent struct {
	EventID         string // provider event identifier
	Type            string
	PayloadChecksum uint64 // CRC-64/NVME of the raw payload
	CreatedAt       time.Time
}
