package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSessionIssuer     = "chatsync"
	defaultSessionCookieName = "app_session"
	bearerScheme             = "bearer"
)

var (
	ErrMissingSessionSigningKey = errors.New("auth: session signing secret is required")
	ErrMissingSessionToken      = errors.New("auth: no session token presented")
	ErrInvalidSessionToken      = errors.New("auth: session token rejected")
	ErrExpiredSessionToken      = errors.New("auth: session token expired")
	ErrMissingSessionSubject    = errors.New("auth: session token names no user")
)

// SessionClaims is the JWT payload carried by chat sessions.
type SessionClaims struct {
	UserID          string `json:"user_id"`
	UserEmail       string `json:"user_email,omitempty"`
	UserDisplayName string `json:"user_display_name,omitempty"`
	jwt.RegisteredClaims
}

// SessionValidatorConfig describes how session tokens are checked. Issuer and
// CookieName fall back to package defaults when blank.
type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Clock         func() time.Time
}

// SessionValidator checks HS256 session tokens presented by API callers.
type SessionValidator struct {
	secret     []byte
	cookieName string
	parser     *jwt.Parser
}

// NewSessionValidator builds a validator whose parser is fixed at construction.
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSessionSigningKey
	}
	issuer := firstNonBlank(cfg.Issuer, defaultSessionIssuer)
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(clock),
		jwt.WithExpirationRequired(),
	)
	return &SessionValidator{
		secret:     append([]byte(nil), cfg.SigningSecret...),
		cookieName: firstNonBlank(cfg.CookieName, defaultSessionCookieName),
		parser:     parser,
	}, nil
}

// CookieName is the cookie consulted before the Authorization header.
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateToken parses a raw token and returns its claims.
func (v *SessionValidator) ValidateToken(raw string) (SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}

	var claims SessionClaims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return SessionClaims{}, ErrExpiredSessionToken
	case err != nil:
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}

	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.Subject) == "" {
		return SessionClaims{}, ErrMissingSessionSubject
	}
	return claims, nil
}

// ValidateRequest validates the token carried by the request cookie or, failing
// that, its bearer Authorization header.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	token := v.tokenFromRequest(r)
	if token == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}
	return v.ValidateToken(token)
}

func (v *SessionValidator) tokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if cookie, err := r.Cookie(v.cookieName); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value
		}
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return ""
	}
	return strings.TrimSpace(token)
}

func firstNonBlank(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
