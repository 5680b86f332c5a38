package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSessionSigningSecret = "secret"
	testSessionCookieName    = "chat_session"
	testSessionUserID        = "user-123"
	testSessionUserEmail     = "user@example.com"
)

var testClockNow = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

func newTestValidator(t *testing.T) *SessionValidator {
	t.Helper()
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		CookieName:    testSessionCookieName,
		Clock: func() time.Time {
			return testClockNow
		},
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func signTestToken(t *testing.T, claims SessionClaims, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validClaims() SessionClaims {
	return SessionClaims{
		UserID:    testSessionUserID,
		UserEmail: testSessionUserEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    defaultSessionIssuer,
			Subject:   testSessionUserID,
			IssuedAt:  jwt.NewNumericDate(testClockNow.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(testClockNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(testClockNow.Add(time.Hour)),
		},
	}
}

func TestSessionValidatorValidateToken(t *testing.T) {
	validator := newTestValidator(t)

	claims, err := validator.ValidateToken(signTestToken(t, validClaims(), testSessionSigningSecret))
	if err != nil {
		t.Fatalf("unexpected validation failure: %v", err)
	}
	if claims.UserID != testSessionUserID {
		t.Fatalf("unexpected user id: %s", claims.UserID)
	}
	if claims.UserEmail != testSessionUserEmail {
		t.Fatalf("unexpected email: %s", claims.UserEmail)
	}
}

func TestSessionValidatorRejectsBadTokens(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(testClockNow.Add(-time.Hour))

	foreignIssuer := validClaims()
	foreignIssuer.Issuer = "someone-else"

	missingUser := validClaims()
	missingUser.UserID = ""

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	testCases := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty", token: "  ", wantErr: ErrMissingSessionToken},
		{name: "expired", token: signTestToken(t, expired, testSessionSigningSecret), wantErr: ErrExpiredSessionToken},
		{name: "wrong-secret", token: signTestToken(t, validClaims(), "other"), wantErr: ErrInvalidSessionToken},
		{name: "foreign-issuer", token: signTestToken(t, foreignIssuer, testSessionSigningSecret), wantErr: ErrInvalidSessionToken},
		{name: "missing-user", token: signTestToken(t, missingUser, testSessionSigningSecret), wantErr: ErrMissingSessionSubject},
		{name: "no-expiry", token: signTestToken(t, noExpiry, testSessionSigningSecret), wantErr: ErrInvalidSessionToken},
		{name: "garbage", token: "not-a-jwt", wantErr: ErrInvalidSessionToken},
	}

	validator := newTestValidator(t)
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := validator.ValidateToken(testCase.token); !errors.Is(err, testCase.wantErr) {
				t.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestSessionValidatorValidateRequestSources(t *testing.T) {
	validator := newTestValidator(t)
	signed := signTestToken(t, validClaims(), testSessionSigningSecret)

	cookieRequest := httptest.NewRequest(http.MethodGet, "/api/chats", http.NoBody)
	cookieRequest.AddCookie(&http.Cookie{Name: testSessionCookieName, Value: signed})

	bearerRequest := httptest.NewRequest(http.MethodPatch, "/api/chat", http.NoBody)
	bearerRequest.Header.Set("Authorization", "bearer "+signed)

	for name, request := range map[string]*http.Request{"cookie": cookieRequest, "bearer": bearerRequest} {
		claims, err := validator.ValidateRequest(request)
		if err != nil {
			t.Fatalf("%s: validation failed: %v", name, err)
		}
		if claims.UserID != testSessionUserID {
			t.Fatalf("%s: unexpected user id: %s", name, claims.UserID)
		}
	}

	anonymous := httptest.NewRequest(http.MethodGet, "/api/chats", http.NoBody)
	if _, err := validator.ValidateRequest(anonymous); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestNewSessionValidatorDefaults(t *testing.T) {
	if _, err := NewSessionValidator(SessionValidatorConfig{}); !errors.Is(err, ErrMissingSessionSigningKey) {
		t.Fatalf("expected missing signing key error, got %v", err)
	}
	validator, err := NewSessionValidator(SessionValidatorConfig{SigningSecret: []byte(testSessionSigningSecret)})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if validator.CookieName() != defaultSessionCookieName {
		t.Fatalf("expected default cookie name, got %s", validator.CookieName())
	}
}
