package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/antiwork/gumboard/internal/apperr"
	"github.com/antiwork/gumboard/internal/billing"
)

type receivedResponse struct {
	Received bool `json:"received"`
}

func (s *Server) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, apperr.Validation(apperr.CodeInvalidPayload, "Payload too large"))
			return
		}
		writeError(w, r, apperr.Validation(apperr.CodeInvalidPayload, "Failed to read payload"))
		return
	}

	if _, err := s.reconciler.Handle(r.Context(), payload, r.Header.Get(billing.SignatureHeaderName)); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, receivedResponse{Received: true})
}
