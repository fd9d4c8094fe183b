package server

import (
	"net/http"
	"time"

	"github.com/antiwork/gumboard/internal/apperr"
	"github.com/antiwork/gumboard/internal/auth"
	"github.com/antiwork/gumboard/internal/invite"
	"github.com/antiwork/gumboard/internal/models"
	"github.com/rs/zerolog"
)

type previewResponse struct {
	Name             string     `json:"name"`
	OrganizationID   string     `json:"organizationId"`
	OrganizationName string     `json:"organizationName"`
	Status           string     `json:"status"`
	UsageCount       int        `json:"usageCount"`
	UsageLimit       *int       `json:"usageLimit,omitempty"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
}

type joinRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type userResponse struct {
	ID             string  `json:"id"`
	Email          string  `json:"email"`
	Name           string  `json:"name"`
	OrganizationID *string `json:"organizationId,omitempty"`
}

type joinResponse struct {
	OrganizationID string       `json:"organizationId"`
	AlreadyMember  bool         `json:"alreadyMember"`
	User           userResponse `json:"user"`
}

type createInviteRequest struct {
	Email string `json:"email"`
}

type inviteResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	OrganizationID string    `json:"organizationId"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

type createSelfServeRequest struct {
	Name       string     `json:"name"`
	UsageLimit *int       `json:"usageLimit"`
	ExpiresAt  *time.Time `json:"expiresAt"`
}

type selfServeResponse struct {
	ID         string     `json:"id"`
	Token      string     `json:"token"`
	Name       string     `json:"name"`
	UsageCount int        `json:"usageCount"`
	UsageLimit *int       `json:"usageLimit,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	IsActive   bool       `json:"isActive"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (s *Server) handleJoinPreview(w http.ResponseWriter, r *http.Request) {
	p, err := s.invites.Preview(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, previewResponse{
		Name:             p.Name,
		OrganizationID:   p.OrganizationID.String(),
		OrganizationName: p.OrganizationName,
		Status:           string(p.State),
		UsageCount:       p.UsageCount,
		UsageLimit:       p.UsageLimit,
		ExpiresAt:        p.ExpiresAt,
	})
}

// handleJoin redeems a self-serve token. Signed-in callers join with their
// account; anonymous callers provide an email and receive a session once the
// redemption has committed.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	if principal := auth.PrincipalFromContext(r.Context()); principal != nil {
		res, err := s.invites.Redeem(r.Context(), token, principal.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newJoinResponse(res))
		return
	}

	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Email == "" {
		writeError(w, r, apperr.Unauthenticated("Sign in or provide an email to join"))
		return
	}

	res, err := s.invites.RedeemAnonymous(r.Context(), token, req.Email, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// The account exists now; a cookie failure only means the user signs in.
	if err := s.sessions.SetCookie(w, res.User.ID); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("user_id", res.User.ID.String()).Msg("Failed to issue session")
	}

	writeJSON(w, http.StatusCreated, newJoinResponse(res))
}

func (s *Server) handleListInvites(w http.ResponseWriter, r *http.Request) {
	principal, err := requireSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	invites, err := s.invites.ListInvites(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]inviteResponse, 0, len(invites))
	for _, inv := range invites {
		resp = append(resp, newInviteResponse(inv))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	principal, err := requireSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createInviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	inv, err := s.invites.InviteByEmail(r.Context(), principal.UserID, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newInviteResponse(inv))
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	principal, err := requireSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	inviteID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := s.invites.AcceptInvite(r.Context(), inviteID, principal.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (s *Server) handleDeclineInvite(w http.ResponseWriter, r *http.Request) {
	principal, err := requireSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	inviteID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.invites.DeclineInvite(r.Context(), inviteID, principal.UserID); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSelfServe(w http.ResponseWriter, r *http.Request) {
	principal, err := requireSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	invites, err := s.invites.ListSelfServe(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]selfServeResponse, 0, len(invites))
	for _, inv := range invites {
		resp = append(resp, newSelfServeResponse(inv))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateSelfServe(w http.ResponseWriter, r *http.Request) {
	principal, err := requireSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createSelfServeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	inv, err := s.invites.CreateSelfServe(r.Context(), principal.UserID, invite.CreateSelfServeParams{
		Name:       req.Name,
		UsageLimit: req.UsageLimit,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newSelfServeResponse(inv))
}

func (s *Server) handleDeactivateSelfServe(w http.ResponseWriter, r *http.Request) {
	principal, err := requireSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	inviteID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.invites.Deactivate(r.Context(), principal.UserID, inviteID); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func newJoinResponse(res *invite.Redemption) joinResponse {
	return joinResponse{
		OrganizationID: res.OrganizationID.String(),
		AlreadyMember:  res.AlreadyMember,
		User:           newUserResponse(res.User),
	}
}

func newUserResponse(u *models.User) userResponse {
	resp := userResponse{ID: u.ID.String(), Email: u.Email, Name: u.Name}
	if u.OrganizationID != nil {
		orgID := u.OrganizationID.String()
		resp.OrganizationID = &orgID
	}
	return resp
}

func newInviteResponse(inv *models.OrganizationInvite) inviteResponse {
	return inviteResponse{
		ID:             inv.ID.String(),
		Email:          inv.Email,
		OrganizationID: inv.OrganizationID.String(),
		Status:         inv.Status,
		CreatedAt:      inv.CreatedAt,
	}
}

func newSelfServeResponse(inv *models.OrganizationSelfServeInvite) selfServeResponse {
	return selfServeResponse{
		ID:         inv.ID.String(),
		Token:      inv.Token,
		Name:       inv.Name,
		UsageCount: inv.UsageCount,
		UsageLimit: inv.UsageLimit,
		ExpiresAt:  inv.ExpiresAt,
		IsActive:   inv.IsActive,
		CreatedAt:  inv.CreatedAt,
	}
}
