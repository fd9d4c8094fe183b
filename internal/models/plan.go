package models

import (
	"time"

	"github.com/google/uuid"
)

// Plan is a catalog entry that maps to a price at the payment provider.
type Plan struct {
	ID          uuid.UUID
	Name        string
	PriceRef    string // provider price identifier, never taken from clients
	Description string
	MemberLimit *int // nil means unlimited

	CreatedAt time.Time
	UpdatedAt time.Time
}
