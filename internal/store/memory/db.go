package memory

import (
	"sync"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/google/uuid"
)

// DB is the shared in-memory backing for all memory stores.
// A single lock covers every table so redemption transactions can span
// invites and users. This implementation is for testing only - data is lost on restart.
type DB struct {
	mu sync.RWMutex

	organizations    map[uuid.UUID]*models.Organization                // org_id -> Organization
	plans            map[uuid.UUID]*models.Plan                        // plan_id -> Plan
	users            map[uuid.UUID]*models.User                        // user_id -> User
	usersByEmail     map[string]uuid.UUID                              // email -> user_id
	invites          map[uuid.UUID]*models.OrganizationInvite          // invite_id -> OrganizationInvite
	selfServeInvites map[uuid.UUID]*models.OrganizationSelfServeInvite // invite_id -> OrganizationSelfServeInvite
	selfServeByToken map[string]uuid.UUID                              // token -> invite_id
	webhookEvents    map[string]*models.WebhookEvent                   // event_id -> WebhookEvent
}

// NewDB creates an empty in-memory database.
func NewDB() *DB {
	return &DB{
		organizations:    make(map[uuid.UUID]*models.Organization),
		plans:            make(map[uuid.UUID]*models.Plan),
		users:            make(map[uuid.UUID]*models.User),
		usersByEmail:     make(map[string]uuid.UUID),
		invites:          make(map[uuid.UUID]*models.OrganizationInvite),
		selfServeInvites: make(map[uuid.UUID]*models.OrganizationSelfServeInvite),
		selfServeByToken: make(map[string]uuid.UUID),
		webhookEvents:    make(map[string]*models.WebhookEvent),
	}
}

// NewStores creates a full set of stores over a fresh in-memory database.
func NewStores() store.Stores {
	db := NewDB()
	return store.Stores{
		Organizations:    NewOrganizationStore(db),
		Plans:            NewPlanStore(db),
		Users:            NewUserStore(db),
		Invites:          NewInviteStore(db),
		SelfServeInvites: NewSelfServeInviteStore(db),
		WebhookEvents:    NewWebhookEventStore(db),
	}
}
