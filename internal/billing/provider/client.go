// Package provider is an HTTP client for the payment provider's REST API.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antiwork/gumboard/internal/billing"
	"github.com/antiwork/gumboard/internal/telemetry"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultBaseURL    = "https://api.stripe.com"
	DefaultMaxRetries = 3
	DefaultTimeout    = 10 * time.Second

	maxResponseSize = 1 << 20
)

var _ billing.Provider = (*Client)(nil)

// Config configures the provider client.
type Config struct {
	APIKey  string
	BaseURL string

	// MaxRetries is the number of retries after the first attempt for
	// rate limited, server side and network failures.
	// Default: 3
	MaxRetries uint

	// Timeout bounds each attempt.
	// Default: 10 seconds
	Timeout time.Duration

	// InitialInterval is the first retry delay.
	// Default: 500ms
	InitialInterval time.Duration
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Client calls the provider REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	metrics    *telemetry.Metrics
}

// New creates a provider client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("provider API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		metrics:    telemetry.GetMetrics(),
	}, nil
}

// GetSubscription fetches a subscription by ID.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	if subscriptionID == "" {
		return nil, errors.New("subscription id is required")
	}

	var sub billing.Subscription
	path := "/v1/subscriptions/" + url.PathEscape(subscriptionID)
	if err := c.do(ctx, "get_subscription", http.MethodGet, path, nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateCheckoutSession creates a subscription mode checkout session.
func (c *Client) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (string, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", params.PriceRef)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	if params.CustomerRef != "" {
		form.Set("customer", params.CustomerRef)
	} else if params.CustomerEmail != "" {
		form.Set("customer_email", params.CustomerEmail)
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
		form.Set("subscription_data[metadata]["+k+"]", v)
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := c.do(ctx, "create_checkout", http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return "", err
	}
	if session.URL == "" {
		return "", errors.New("provider returned checkout session without url")
	}
	return session.URL, nil
}

// CreatePortalSession creates a billing portal session for a customer.
func (c *Client) CreatePortalSession(ctx context.Context, customerRef, returnURL string) (string, error) {
	form := url.Values{}
	form.Set("customer", customerRef)
	form.Set("return_url", returnURL)

	var session struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, "create_portal", http.MethodPost, "/v1/billing_portal/sessions", form, &session); err != nil {
		return "", err
	}
	if session.URL == "" {
		return "", errors.New("provider returned portal session without url")
	}
	return session.URL, nil
}

// do performs a request with retries. POST requests carry an idempotency key
// shared by all attempts so a retried create never produces two sessions.
func (c *Client) do(ctx context.Context, op, method, path string, form url.Values, out any) error {
	started := time.Now()
	opAttr := attribute.String("op", op)

	var idempotencyKey string
	if method == http.MethodPost {
		idempotencyKey = uuid.NewString()
	}

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			telemetry.Add(ctx, c.metrics.ProviderRetriesTotal, opAttr)
		}

		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}

		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Accept", "application/json")
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(ctx.Err())
			}
			return struct{}{}, fmt.Errorf("HTTP request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := parseAPIError(resp.StatusCode, respBody)
			if !apiErr.Retryable() {
				return struct{}{}, backoff.Permanent(apiErr)
			}
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				return struct{}{}, backoff.RetryAfter(secs)
			}
			return struct{}{}, apiErr
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return struct{}{}, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
			}
		}

		return struct{}{}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.cfg.MaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			zerolog.Ctx(ctx).Warn().
				Err(err).
				Str("op", op).
				Dur("retry_in", next).
				Msg("Provider call failed, retrying")
		}),
	)

	result := "ok"
	if err != nil {
		result = "error"
	}
	telemetry.Add(ctx, c.metrics.ProviderCallsTotal, opAttr, attribute.String("result", result))
	if c.metrics.ProviderCallDuration != nil {
		c.metrics.ProviderCallDuration.Record(ctx, float64(time.Since(started).Milliseconds()))
	}

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}
