package server

import (
	"context"
	"net/http"

	"filippo.io/csrf"
	"github.com/antiwork/gumboard/internal/apperr"
	"github.com/antiwork/gumboard/internal/auth"
	"github.com/antiwork/gumboard/internal/billing"
	httpmiddleware "github.com/antiwork/gumboard/internal/http"
	"github.com/antiwork/gumboard/internal/invite"
	"github.com/antiwork/gumboard/internal/logger"
	"github.com/antiwork/gumboard/internal/store"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxBodyBytes bounds request bodies, including webhook payloads.
const maxBodyBytes = 1 << 20

// Config holds the HTTP surface settings.
type Config struct {
	// CORSOrigins are the browser origins allowed to call /api/ with credentials.
	CORSOrigins []string
}

// Server wires the billing and invite services to HTTP routes.
type Server struct {
	cfg        Config
	reconciler *billing.Reconciler
	billing    *billing.Service
	invites    *invite.Service
	sessions   *auth.SessionManager
	pinger     store.Pinger
}

// Deps are the services the server routes to.
type Deps struct {
	Reconciler *billing.Reconciler
	Billing    *billing.Service
	Invites    *invite.Service
	Sessions   *auth.SessionManager

	// Pinger is optional; without it /healthz only reports liveness.
	Pinger store.Pinger
}

// NewServer creates a new server with the given services
func NewServer(cfg Config, deps Deps) *Server {
	return &Server{
		cfg:        cfg,
		reconciler: deps.Reconciler,
		billing:    deps.Billing,
		invites:    deps.Invites,
		sessions:   deps.Sessions,
		pinger:     deps.Pinger,
	}
}

// Routes registers every route on a new mux without middleware.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/webhooks/billing", s.handleBillingWebhook)

	mux.HandleFunc("GET /api/billing/plans", s.handleListPlans)
	mux.HandleFunc("POST /api/billing/checkout", s.handleCheckout)
	mux.HandleFunc("POST /api/billing/portal", s.handlePortal)

	mux.HandleFunc("GET /api/invites/join/{token}", s.handleJoinPreview)
	mux.HandleFunc("POST /api/invites/join/{token}", s.handleJoin)

	mux.HandleFunc("GET /api/organization/invites", s.handleListInvites)
	mux.HandleFunc("POST /api/organization/invites", s.handleCreateInvite)
	mux.HandleFunc("POST /api/organization/invites/{id}/accept", s.handleAcceptInvite)
	mux.HandleFunc("POST /api/organization/invites/{id}/decline", s.handleDeclineInvite)

	mux.HandleFunc("GET /api/organization/self-serve-invites", s.handleListSelfServe)
	mux.HandleFunc("POST /api/organization/self-serve-invites", s.handleCreateSelfServe)
	mux.HandleFunc("DELETE /api/organization/self-serve-invites/{id}", s.handleDeactivateSelfServe)

	return mux
}

// Handler returns the HTTP handler for the server with the full middleware
// stack. The billing webhook is authenticated by its signature and bypasses
// cross-origin protection; every other route is cookie authenticated.
func (s *Server) Handler(log zerolog.Logger) (http.Handler, error) {
	mux := s.Routes()

	protection := csrf.New()
	for _, origin := range s.cfg.CORSOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, err
		}
	}

	browser := withCORS(s.cfg.CORSOrigins, protection.Handler(s.sessions.Middleware(mux)))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/webhooks/billing" {
			mux.ServeHTTP(w, r)
			return
		}
		browser.ServeHTTP(w, r)
	})

	return httpmiddleware.Chain(handler,
		func(h http.Handler) http.Handler { return otelhttp.NewHandler(h, "gumboard") },
		logger.NewHTTPRequests(log).Wrap,
		httpmiddleware.RecoverMiddleware(),
		httpmiddleware.ClientIPMiddleware(),
		func(h http.Handler) http.Handler { return gzhttp.GzipHandler(h) },
	), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withCORS adds credentialed CORS support for browser callers.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true, // Required for cookie-based authentication
	})
	return middleware.Handler(h)
}

// requireSession returns the session principal or an unauthenticated error.
func requireSession(ctx context.Context) (*auth.Principal, error) {
	principal := auth.PrincipalFromContext(ctx)
	if principal == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	return principal, nil
}
