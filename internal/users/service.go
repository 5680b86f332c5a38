package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rlee0/assistant-sub002/internal/auth"
	"github.com/rlee0/assistant-sub002/internal/chats"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// ServiceConfig describes the dependencies required for owner resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service resolves session claims to stable chat owner ids.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// ResolveOwnerID returns the owner id for the session claims, recording the
// provider+subject pair the first time it is seen. Claims of the form
// "provider:subject" keep the provider apart so equal subjects from different
// providers never share chats.
func (s *Service) ResolveOwnerID(ctx context.Context, claims auth.SessionClaims) (chats.OwnerID, error) {
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return "", ErrInvalidIdentity
	}

	cacheKey := provider + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if owner, ok := cached.(chats.OwnerID); ok {
			return owner, nil
		}
	}

	db := s.db.WithContext(ctx)
	var identity Identity
	err := db.Where("provider = ? AND subject = ?", provider, subject).First(&identity).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		identity = Identity{
			Provider:    provider,
			Subject:     subject,
			OwnerID:     ownerFor(provider, subject),
			Email:       normalize(claims.UserEmail),
			DisplayName: normalize(claims.UserDisplayName),
			LastSeenAt:  s.now().UTC(),
		}
		if err := db.Create(&identity).Error; err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	default:
		updates := map[string]interface{}{"last_seen_at": s.now().UTC()}
		if email := normalize(claims.UserEmail); email != "" && email != identity.Email {
			updates["user_email"] = email
		}
		if display := normalize(claims.UserDisplayName); display != "" && display != identity.DisplayName {
			updates["user_display_name"] = display
		}
		if err := db.Model(&Identity{}).
			Where("provider = ? AND subject = ?", provider, subject).
			Updates(updates).Error; err != nil {
			s.logger.Warn("identity refresh failed",
				zap.String("provider", provider),
				zap.Error(err),
			)
		}
	}

	owner, err := chats.NewOwnerID(identity.OwnerID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	s.cache.Store(cacheKey, owner)
	return owner, nil
}

func ownerFor(provider string, subject string) string {
	if provider == defaultProvider {
		return subject
	}
	return provider + ":" + subject
}

func deriveProviderSubject(claims auth.SessionClaims) (string, string) {
	provider := defaultProvider
	subject := normalize(claims.Subject)

	raw := normalize(claims.UserID)
	if raw != "" {
		if segments := strings.SplitN(raw, ":", 2); len(segments) == 2 && normalize(segments[0]) != "" && normalize(segments[1]) != "" {
			provider = normalize(segments[0])
			subject = normalize(segments[1])
		} else if subject == "" {
			subject = raw
		}
	}

	if subject == "" {
		subject = normalize(claims.UserEmail)
	}
	return provider, subject
}
