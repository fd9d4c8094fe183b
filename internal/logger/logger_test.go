package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHTTPRequests_logsStatus(t *testing.T) {
	var buf bytes.Buffer
	mw := NewHTTPRequests(zerolog.New(&buf))

	var ctxLogger *zerolog.Logger
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger = zerolog.Ctx(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/webhooks/billing", nil))

	require.Equal(t, http.StatusTeapot, w.Code)
	require.NotNil(t, ctxLogger)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "http request", line["message"])
	require.Equal(t, "POST", line["method"])
	require.Equal(t, "/api/webhooks/billing", line["path"])
	require.InDelta(t, float64(http.StatusTeapot), line["status"], 0)
}

func TestHTTPRequests_serverErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	mw := NewHTTPRequests(zerolog.New(&buf))

	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "error", line["level"])
}
