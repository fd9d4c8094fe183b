package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antiwork/gumboard/internal/auth"
	"github.com/antiwork/gumboard/internal/billing"
	"github.com/antiwork/gumboard/internal/billing/provider"
	"github.com/antiwork/gumboard/internal/invite"
	"github.com/antiwork/gumboard/internal/logger"
	"github.com/antiwork/gumboard/internal/server"
	"github.com/antiwork/gumboard/internal/telemetry"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"GUMBOARD_LISTEN"`
	Cert   string `help:"path to TLS cert file, serves plain HTTP when empty" default:"" env:"GUMBOARD_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"GUMBOARD_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"GUMBOARD_CORS_ORIGINS"`

	ShutdownTimeout time.Duration `help:"graceful shutdown timeout" default:"15s" env:"GUMBOARD_SHUTDOWN_TIMEOUT"`

	// Operational modes
	Tracing          bool    `help:"enable OpenTelemetry export" default:"false" env:"GUMBOARD_TRACING"`
	TraceSampleRatio float64 `help:"fraction of traces recorded" default:"1" env:"GUMBOARD_TRACE_SAMPLE_RATIO"`

	Store   StoreFlags   `embed:""`
	Billing BillingFlags `embed:"" prefix:"billing-"`
	Session SessionFlags `embed:"" prefix:"session-"`
	Invites InviteFlags  `embed:"" prefix:"invites-"`
}

// BillingFlags configures the payment provider integration.
type BillingFlags struct {
	WebhookSecret      string        `help:"shared secret for webhook signatures" env:"GUMBOARD_BILLING_WEBHOOK_SECRET"`
	SignatureTolerance time.Duration `help:"maximum age of a signed webhook delivery" default:"5m" env:"GUMBOARD_BILLING_SIGNATURE_TOLERANCE"`
	StrictOrdering     bool          `help:"ignore subscription events older than the last applied one" default:"false" env:"GUMBOARD_BILLING_STRICT_ORDERING"`

	ProviderKey     string        `help:"payment provider secret API key" env:"GUMBOARD_BILLING_PROVIDER_KEY"`
	ProviderBaseURL string        `help:"payment provider API base URL" default:"https://api.stripe.com" env:"GUMBOARD_BILLING_PROVIDER_BASE_URL"`
	ProviderRetries uint          `help:"retries for failed provider calls" default:"3" env:"GUMBOARD_BILLING_PROVIDER_RETRIES"`
	ProviderTimeout time.Duration `help:"timeout for a single provider call" default:"10s" env:"GUMBOARD_BILLING_PROVIDER_TIMEOUT"`

	AppURL string `help:"public application URL used for checkout redirects" default:"http://localhost:3000" env:"GUMBOARD_APP_URL"`
}

func (b *BillingFlags) Validate() error {
	if b.SignatureTolerance <= 0 {
		return errors.New("billing signature tolerance must be positive")
	}
	return nil
}

func (b *BillingFlags) validateSecrets() error {
	if b.WebhookSecret == "" {
		return errors.New("webhook secret is required (--billing-webhook-secret or GUMBOARD_BILLING_WEBHOOK_SECRET)")
	}
	if b.ProviderKey == "" {
		return errors.New("provider API key is required (--billing-provider-key or GUMBOARD_BILLING_PROVIDER_KEY)")
	}
	return nil
}

// SessionFlags configures session cookies.
type SessionFlags struct {
	Secret       string        `help:"HMAC secret for session tokens (at least 32 bytes)" env:"GUMBOARD_SESSION_SECRET"`
	TTL          time.Duration `help:"session TTL" default:"720h" env:"GUMBOARD_SESSION_TTL"`
	InsecureHTTP bool          `help:"allow session cookies over plain HTTP (development only)" default:"false" env:"GUMBOARD_SESSION_INSECURE_HTTP"`
}

// InviteFlags configures membership limits.
type InviteFlags struct {
	FreeTierMemberLimit int `help:"member cap for organizations without a plan" default:"3" env:"GUMBOARD_INVITES_FREE_TIER_MEMBER_LIMIT"`
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if err := c.Billing.validateSecrets(); err != nil {
		return err
	}

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName:      "gumboard-server",
			Version:          globals.Version,
			TraceSampleRatio: c.TraceSampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	opened, err := c.Store.open(ctx, log)
	if err != nil {
		return err
	}
	defer opened.Close()
	opened.monitor(ctx)

	providerClient, err := provider.New(provider.Config{
		APIKey:     c.Billing.ProviderKey,
		BaseURL:    c.Billing.ProviderBaseURL,
		MaxRetries: c.Billing.ProviderRetries,
		Timeout:    c.Billing.ProviderTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create provider client: %w", err)
	}

	sessions, err := auth.NewSessionManager(auth.SessionConfig{
		Secret: []byte(c.Session.Secret),
		TTL:    c.Session.TTL,
		Secure: !c.Session.InsecureHTTP,
	})
	if err != nil {
		return fmt.Errorf("failed to configure sessions: %w", err)
	}

	stores := opened.stores
	srv := server.NewServer(server.Config{CORSOrigins: c.CORSOrigins}, server.Deps{
		Reconciler: billing.NewReconciler(stores, providerClient, billing.ReconcilerConfig{
			WebhookSecret:      []byte(c.Billing.WebhookSecret),
			SignatureTolerance: c.Billing.SignatureTolerance,
			StrictOrdering:     c.Billing.StrictOrdering,
		}),
		Billing:  billing.NewService(stores, providerClient, billing.ServiceConfig{AppURL: c.Billing.AppURL}),
		Invites:  invite.NewService(stores, invite.Config{FreeTierMemberLimit: c.Invites.FreeTierMemberLimit}),
		Sessions: sessions,
		Pinger:   opened.pinger(),
	})

	handler, err := srv.Handler(log)
	if err != nil {
		return fmt.Errorf("failed to build handler: %w", err)
	}

	httpServer := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" {
			errCh <- httpServer.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	return nil
}
