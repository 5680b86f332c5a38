package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rlee0/assistant-sub002/internal/auth"
	"github.com/rlee0/assistant-sub002/internal/chats"
)

const (
	accessTokenQueryParam = "access_token"
	chatStreamPath        = "/api/chats/stream"
)

var errMissingIdentityDependency = errors.New("identity resolver requires a session validator and owner resolver")

// IdentityResolver maps an incoming request to the owner it acts for.
type IdentityResolver interface {
	ResolveRequest(r *http.Request) (chats.OwnerID, error)
}

// OwnerResolver maps validated session claims to an owner id.
type OwnerResolver interface {
	ResolveOwnerID(ctx context.Context, claims auth.SessionClaims) (chats.OwnerID, error)
}

// SessionIdentity resolves owners from session tokens. Event streams opened by
// browsers cannot set headers, so the stream endpoint alone also accepts an
// access_token query parameter.
type SessionIdentity struct {
	validator *auth.SessionValidator
	owners    OwnerResolver
}

// NewSessionIdentity wires a validator and owner resolver into an IdentityResolver.
func NewSessionIdentity(validator *auth.SessionValidator, owners OwnerResolver) (*SessionIdentity, error) {
	if validator == nil || owners == nil {
		return nil, errMissingIdentityDependency
	}
	return &SessionIdentity{validator: validator, owners: owners}, nil
}

func (s *SessionIdentity) ResolveRequest(r *http.Request) (chats.OwnerID, error) {
	claims, err := s.validator.ValidateRequest(r)
	if errors.Is(err, auth.ErrMissingSessionToken) && acceptsQueryToken(r) {
		if token := strings.TrimSpace(r.URL.Query().Get(accessTokenQueryParam)); token != "" {
			claims, err = s.validator.ValidateToken(token)
		}
	}
	if err != nil {
		return "", err
	}
	return s.owners.ResolveOwnerID(r.Context(), claims)
}

func acceptsQueryToken(r *http.Request) bool {
	return r.Method == http.MethodGet && r.URL.Path == chatStreamPath
}
