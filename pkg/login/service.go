package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tavernkeep/identity/pkg/token"
)

// LoginService authenticates a (email, password, clientId) triple and
// issues a signed token for the client. Every credential check failure
// collapses into ErrInvalidCredentials; callers must not surface
// anything more specific.
type LoginService struct {
	accounts AccountRepository
	issuer   *token.Issuer
	hasher   PasswordHasher
}

type Option func(*LoginService)

// WithPasswordHasher overrides the default bcrypt hasher
func WithPasswordHasher(hasher PasswordHasher) Option {
	return func(s *LoginService) {
		s.hasher = hasher
	}
}

func NewLoginService(accounts AccountRepository, issuer *token.Issuer, options ...Option) *LoginService {
	s := &LoginService{
		accounts: accounts,
		issuer:   issuer,
		hasher:   NewBcryptHasher(),
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// Login verifies the client, then the user, then the password, and
// issues a token on success. The checks run in a fixed order but the
// returned error never reveals which one failed.
func (s *LoginService) Login(ctx context.Context, email, password, clientID string) (string, error) {
	client, err := s.accounts.GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			slog.Info("Login rejected: unknown client", "clientId", clientID)
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to look up client: %w", err)
	}

	user, err := s.accounts.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			slog.Info("Login rejected: unknown user", "clientId", clientID)
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to look up user: %w", err)
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		slog.Info("Login rejected: password mismatch", "userId", user.ID)
		return "", ErrInvalidCredentials
	}

	roles, err := s.accounts.GetRolesForUser(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to look up user roles: %w", err)
	}

	subject := token.Subject{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Roles: roles,
	}

	signed, err := s.issuer.Issue(ctx, subject, client.URL)
	if err != nil {
		return "", err
	}

	slog.Info("Login succeeded", "userId", user.ID, "clientId", client.ID)
	return signed, nil
}
