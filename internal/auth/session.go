package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultCookieName = "gumboard_session"
	DefaultSessionTTL = 30 * 24 * time.Hour

	sessionIssuer = "gumboard"
)

var ErrInvalidSession = errors.New("invalid session")

// SessionConfig configures session cookies.
type SessionConfig struct {
	// Secret signs session tokens with HS256. Must be at least 32 bytes.
	Secret []byte

	// TTL is the lifetime of an issued session.
	// Default: 30 days
	TTL time.Duration

	CookieName string

	// Secure marks the cookie as HTTPS only.
	Secure bool
}

// Validate checks the configuration.
func (c *SessionConfig) Validate() error {
	if len(c.Secret) < 32 {
		return fmt.Errorf("session secret must be at least 32 bytes")
	}
	return nil
}

// SessionManager issues and verifies session cookies.
type SessionManager struct {
	cfg SessionConfig
	now func() time.Time
}

// NewSessionManager creates a session manager, applying defaults.
func NewSessionManager(cfg SessionConfig) (*SessionManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	return &SessionManager{cfg: cfg, now: time.Now}, nil
}

// Issue creates a signed session token for the user.
func (m *SessionManager) Issue(userID uuid.UUID) (string, time.Time, error) {
	now := m.now()
	expires := now.Add(m.cfg.TTL)

	claims := jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}

	return token, expires, nil
}

// Parse verifies a session token and returns the principal it names.
func (m *SessionManager) Parse(token string) (*Principal, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return m.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidSession
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidSession)
	}

	return &Principal{UserID: userID, SessionID: claims.ID}, nil
}

// SetCookie issues a session for the user and writes it as a cookie.
func (m *SessionManager) SetCookie(w http.ResponseWriter, userID uuid.UUID) error {
	token, expires, err := m.Issue(userID)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// ClearCookie removes the session cookie.
func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
