package auth

import (
	"context"
	"time"

	"pasteor/pkg/domain"
	"pasteor/svc/cache"
	"pasteor/svc/db"

	"github.com/pkg/errors"
)

// Service is the seam between external identity federation and the core.
// OAuth callback handlers (outside this module's scope) hand Login an
// already-verified profile; everything downstream works with the stable
// user id it mints.
type Service struct {
	db     *db.SQLite
	tokens *Tokens
	users  *cache.Users
}

func NewService(sqlDB *db.SQLite, tokens *Tokens, users *cache.Users) *Service {
	return &Service{db: sqlDB, tokens: tokens, users: users}
}

// Login resolves a verified provider profile to a stable user id and
// issues a bearer token for it.
func (s *Service) Login(ctx context.Context, email, name, avatarURL, provider, providerID string) (*domain.User, string, error) {
	if email == "" || provider == "" || providerID == "" {
		return nil, "", errors.New("email, provider and provider id are required")
	}
	user, err := s.db.ResolveUser(ctx, email, name, avatarURL, provider, providerID)
	if err != nil {
		return nil, "", errors.Wrap(err, "resolve user")
	}
	// Login may have refreshed name and avatar; drop any cached copy.
	s.users.Delete(user.ID)
	token, err := s.tokens.Issue(user, time.Now())
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Resolve turns a raw bearer token into an optional caller identity. A
// missing or bad token is an anonymous caller, not an error: operations
// that need identity fail with 401 in the core instead.
func (s *Service) Resolve(bearer string) *domain.Identity {
	if bearer == "" {
		return nil
	}
	ident, err := s.tokens.Verify(bearer)
	if err != nil {
		return nil
	}
	return ident
}
