package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/antiwork/gumboard/internal/models"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/google/uuid"
)

// SelfServeInviteStore implements store.SelfServeInviteStore using in-memory storage.
type SelfServeInviteStore struct {
	db *DB
}

// NewSelfServeInviteStore creates a new in-memory self-serve invite store.
func NewSelfServeInviteStore(db *DB) *SelfServeInviteStore {
	return &SelfServeInviteStore{db: db}
}

// Create stores a new self-serve invite.
func (s *SelfServeInviteStore) Create(ctx context.Context, invite *models.OrganizationSelfServeInvite) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.selfServeInvites[invite.ID]; exists {
		return store.ErrSelfServeInviteAlreadyExists
	}
	if _, exists := s.db.selfServeByToken[invite.Token]; exists {
		return store.ErrSelfServeInviteAlreadyExists
	}

	clone := *invite
	s.db.selfServeInvites[invite.ID] = &clone
	s.db.selfServeByToken[invite.Token] = invite.ID

	return nil
}

// Get retrieves a self-serve invite by ID.
func (s *SelfServeInviteStore) Get(ctx context.Context, inviteID uuid.UUID) (*models.OrganizationSelfServeInvite, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	invite, exists := s.db.selfServeInvites[inviteID]
	if !exists {
		return nil, store.ErrSelfServeInviteNotFound
	}

	clone := *invite
	return &clone, nil
}

// GetByToken retrieves a self-serve invite by token.
func (s *SelfServeInviteStore) GetByToken(ctx context.Context, token string) (*models.OrganizationSelfServeInvite, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	inviteID, exists := s.db.selfServeByToken[strings.TrimSpace(token)]
	if !exists {
		return nil, store.ErrSelfServeInviteNotFound
	}

	clone := *s.db.selfServeInvites[inviteID]
	return &clone, nil
}

// ListByOrganization returns the self-serve invites of an organization, newest first.
func (s *SelfServeInviteStore) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.OrganizationSelfServeInvite, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*models.OrganizationSelfServeInvite
	for _, invite := range s.db.selfServeInvites {
		if invite.OrganizationID == orgID {
			clone := *invite
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// Deactivate clears the IsActive flag.
func (s *SelfServeInviteStore) Deactivate(ctx context.Context, inviteID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	invite, exists := s.db.selfServeInvites[inviteID]
	if !exists {
		return store.ErrSelfServeInviteNotFound
	}

	clone := *invite
	clone.IsActive = false
	clone.UpdatedAt = time.Now()
	s.db.selfServeInvites[inviteID] = &clone

	return nil
}

// WithRedemptionTx holds the database write lock for the duration of fn and
// replays an undo log if fn fails.
func (s *SelfServeInviteStore) WithRedemptionTx(ctx context.Context, fn func(ctx context.Context, tx store.RedemptionTx) error) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	tx := &redemptionTx{db: s.db}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}

	return nil
}

// redemptionTx applies writes directly and records how to revert them.
type redemptionTx struct {
	db   *DB
	undo []func()
}

func (tx *redemptionTx) IncrementUsage(ctx context.Context, inviteID uuid.UUID) (*models.OrganizationSelfServeInvite, error) {
	invite, exists := tx.db.selfServeInvites[inviteID]
	if !exists {
		return nil, store.ErrSelfServeInviteNotFound
	}

	previous := invite
	clone := *invite
	clone.UsageCount++
	clone.UpdatedAt = time.Now()
	tx.db.selfServeInvites[inviteID] = &clone

	tx.undo = append(tx.undo, func() {
		tx.db.selfServeInvites[inviteID] = previous
	})

	out := clone
	return &out, nil
}

func (tx *redemptionTx) CreateUser(ctx context.Context, user *models.User) error {
	if err := tx.db.createUserLocked(user); err != nil {
		return err
	}

	userID, email := user.ID, user.Email
	tx.undo = append(tx.undo, func() {
		delete(tx.db.users, userID)
		delete(tx.db.usersByEmail, email)
	})

	return nil
}

func (tx *redemptionTx) SetUserOrganization(ctx context.Context, userID, orgID uuid.UUID) error {
	previous, err := tx.db.setUserOrganizationLocked(userID, orgID)
	if err != nil {
		return err
	}

	if previous != nil {
		tx.undo = append(tx.undo, func() {
			tx.db.users[userID] = previous
		})
	}

	return nil
}

func (tx *redemptionTx) AcceptPendingInvite(ctx context.Context, email string, orgID uuid.UUID) (bool, error) {
	invite := tx.db.inviteByEmailLocked(orgID, email)
	if invite == nil || invite.Status != models.InviteStatusPending {
		return false, nil
	}

	previous := invite
	clone := *invite
	clone.Status = models.InviteStatusAccepted
	clone.UpdatedAt = time.Now()
	tx.db.invites[invite.ID] = &clone

	tx.undo = append(tx.undo, func() {
		tx.db.invites[previous.ID] = previous
	})

	return true, nil
}

func (tx *redemptionTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}
