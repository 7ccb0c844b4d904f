package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/auth"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/domain"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/port"
)

// AuthService verifies credentials and mints bearer tokens.
type AuthService struct {
	users     port.UserRepository
	hasher    *auth.PasswordHasher
	tokens    *auth.TokenIssuer
	log       *slog.Logger
	dummyHash string
}

func NewAuthService(users port.UserRepository, hasher *auth.PasswordHasher, tokens *auth.TokenIssuer, log *slog.Logger) (*AuthService, error) {
	// compared against when the username is unknown so both failure paths do the same work
	dummy, err := hasher.Hash("no-such-user-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &AuthService{users: users, hasher: hasher, tokens: tokens, log: log, dummyHash: dummy}, nil
}

// Authenticate returns domain.ErrInvalidCredentials for both an unknown username and a wrong password.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return domain.User{}, fmt.Errorf("find user: %w", err)
		}
		_, _ = s.hasher.Matches(s.dummyHash, password)
		s.log.Warn("login failed: unknown user", slog.String("username", username))
		return domain.User{}, domain.ErrInvalidCredentials
	}

	ok, err := s.hasher.Matches(user.PasswordHash, password)
	if err != nil {
		return domain.User{}, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		s.log.Warn("login failed: wrong password", slog.String("username", username))
		return domain.User{}, domain.ErrInvalidCredentials
	}

	return user, nil
}

// Login authenticates and returns a signed token for the user.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	s.log.Info("login success", slog.String("username", user.Username))
	return token, nil
}

// VerifyToken returns the token's subject.
func (s *AuthService) VerifyToken(token string) (string, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
