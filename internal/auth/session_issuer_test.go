package auth

import (
	"errors"
	"testing"
	"time"
)

func TestSessionIssuerRoundTripsThroughValidator(t *testing.T) {
	issuer, err := NewSessionIssuer(SessionIssuerConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		TTL:           time.Hour,
		Clock: func() time.Time {
			return testClockNow
		},
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	token, expiresAt, err := issuer.Issue(" "+testSessionUserID+" ", testSessionUserEmail, "Test User")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if !expiresAt.Equal(testClockNow.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	claims, err := newTestValidator(t).ValidateToken(token)
	if err != nil {
		t.Fatalf("issued token failed validation: %v", err)
	}
	if claims.UserID != testSessionUserID || claims.Subject != testSessionUserID {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.UserDisplayName != "Test User" {
		t.Fatalf("unexpected display name %q", claims.UserDisplayName)
	}
}

func TestSessionIssuerRejectsInvalidInput(t *testing.T) {
	if _, err := NewSessionIssuer(SessionIssuerConfig{}); !errors.Is(err, ErrMissingSessionSigningKey) {
		t.Fatalf("expected missing signing key error, got %v", err)
	}
	issuer, err := NewSessionIssuer(SessionIssuerConfig{SigningSecret: []byte(testSessionSigningSecret)})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, _, err := issuer.Issue("  ", "", ""); !errors.Is(err, errMissingSubjectClaim) {
		t.Fatalf("expected missing subject error, got %v", err)
	}
}
