package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/antiwork/gumboard/internal/apperr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type errorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err in the stable {error, details} shape. Internal
// errors are logged and never echo their cause to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal("Internal server error", err)
	}

	status := appErr.Kind.HTTPStatus()
	log := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", string(appErr.Code)).Msg("Request failed")
	} else {
		log.Debug().Err(err).Str("code", string(appErr.Code)).Msg("Request rejected")
	}

	details := map[string]any{"code": string(appErr.Code)}
	for k, v := range appErr.Details {
		details[k] = v
	}

	writeJSON(w, status, errorResponse{Error: appErr.Msg, Details: details})
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation(apperr.CodeInvalidInput, "Invalid request body")
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperr.Validation(apperr.CodeInvalidInput, "Invalid identifier").
			WithDetail("field", name)
	}
	return id, nil
}
