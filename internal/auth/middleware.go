package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Principal is the authenticated user of a request.
type Principal struct {
	UserID    uuid.UUID
	SessionID string
}

type contextKey int

const (
	principalContextKey contextKey = iota
)

// PrincipalFromContext extracts the authenticated principal from the request context.
// Returns nil if no principal is present (unauthenticated request).
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey).(*Principal)
	return principal
}

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// Middleware attaches the principal of a valid session cookie to the request
// context. Requests without a valid session pass through anonymously; routes
// that need a session check PrincipalFromContext.
func (m *SessionManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.cfg.CookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := m.Parse(cookie.Value)
		if err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("Ignoring invalid session cookie")
			next.ServeHTTP(w, r)
			return
		}

		ctx := WithPrincipal(r.Context(), principal)
		l := zerolog.Ctx(ctx).With().Str("user_id", principal.UserID.String()).Logger()
		ctx = l.WithContext(ctx)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
