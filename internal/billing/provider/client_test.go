package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/antiwork/gumboard/internal/billing"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		APIKey:          "sk_test",
		BaseURL:         srv.URL,
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestNew_requiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestClient_GetSubscription(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/subscriptions/sub_123", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"sub_123","customer":"cus_1","status":"active","current_period_end":1767225600,"metadata":{"organizationId":"x"}}`))
	})

	sub, err := c.GetSubscription(context.Background(), "sub_123")
	require.NoError(t, err)
	require.Equal(t, "sub_123", sub.ID)
	require.Equal(t, "cus_1", sub.Customer)
	require.Equal(t, "active", sub.Status)
	require.Equal(t, time.Unix(1767225600, 0).UTC(), *sub.PeriodEnd())
}

func TestClient_retriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"sub_1","status":"trialing"}`))
	})

	sub, err := c.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	require.Equal(t, "trialing", sub.Status)
	require.Equal(t, int32(3), calls.Load())
}

func TestClient_givesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.GetSubscription(context.Background(), "sub_1")
	require.Error(t, err)
	require.Equal(t, int32(3), calls.Load())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestClient_doesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such subscription"}}`))
	})

	_, err := c.GetSubscription(context.Background(), "sub_missing")
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "No such subscription", apiErr.Message)
}

func TestClient_CreateCheckoutSession(t *testing.T) {
	var keys []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		keys = append(keys, r.Header.Get("Idempotency-Key"))

		if len(keys) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		require.Equal(t, "subscription", r.PostForm.Get("mode"))
		require.Equal(t, "price_team", r.PostForm.Get("line_items[0][price]"))
		require.Equal(t, "owner@example.com", r.PostForm.Get("customer_email"))
		require.Equal(t, "org-1", r.PostForm.Get("metadata[organizationId]"))
		require.Equal(t, "org-1", r.PostForm.Get("subscription_data[metadata][organizationId]"))
		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://checkout.example/cs_1"}`))
	})

	url, err := c.CreateCheckoutSession(context.Background(), billing.CheckoutParams{
		PriceRef:      "price_team",
		CustomerEmail: "owner@example.com",
		SuccessURL:    "https://app.example/ok",
		CancelURL:     "https://app.example/cancel",
		Metadata:      map[string]string{"organizationId": "org-1"},
	})
	require.NoError(t, err)
	require.Equal(t, "https://checkout.example/cs_1", url)

	require.Len(t, keys, 2)
	require.NotEmpty(t, keys[0])
	require.Equal(t, keys[0], keys[1], "retries reuse the idempotency key")
}

func TestClient_CreatePortalSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/billing_portal/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "cus_1", r.PostForm.Get("customer"))
		_, _ = w.Write([]byte(`{"url":"https://portal.example/s"}`))
	})

	url, err := c.CreatePortalSession(context.Background(), "cus_1", "https://app.example/settings")
	require.NoError(t, err)
	require.Equal(t, "https://portal.example/s", url)
}
