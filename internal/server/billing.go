package server

import (
	"net/http"

	"github.com/antiwork/gumboard/internal/apperr"
	"github.com/google/uuid"
)

type checkoutRequest struct {
	PlanID     string   `json:"planId"`
	TeamEmails []string `json:"teamEmails"`
}

type redirectResponse struct {
	URL string `json:"url"`
}

type planResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MemberLimit *int   `json:"memberLimit,omitempty"`
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.billing.ListPlans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		resp = append(resp, planResponse{
			ID:          p.ID.String(),
			Name:        p.Name,
			Description: p.Description,
			MemberLimit: p.MemberLimit,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	principal, err := requireSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		writeError(w, r, apperr.Validation(apperr.CodeInvalidInput, "A valid plan is required").
			WithDetail("field", "planId"))
		return
	}

	url, err := s.billing.CreateCheckout(r.Context(), principal.UserID, planID, req.TeamEmails)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, redirectResponse{URL: url})
}

func (s *Server) handlePortal(w http.ResponseWriter, r *http.Request) {
	principal, err := requireSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	url, err := s.billing.CreatePortal(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, redirectResponse{URL: url})
}
