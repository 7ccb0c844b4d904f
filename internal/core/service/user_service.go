package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/auth"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/domain"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/port"
)

type UserService struct {
	users  port.UserRepository
	hasher *auth.PasswordHasher
	log    *slog.Logger
}

func NewUserService(users port.UserRepository, hasher *auth.PasswordHasher, log *slog.Logger) *UserService {
	return &UserService{users: users, hasher: hasher, log: log}
}

// CreateUser validates the request, hashes the password and stores the user with a new empty cart.
func (s *UserService) CreateUser(ctx context.Context, username, password, confirmPassword string) (domain.User, error) {
	username = strings.TrimSpace(username)

	if err := domain.ValidateRegistration(username, password, confirmPassword); err != nil {
		s.log.Error("create user failed: validation", slog.String("username", username), slog.Any("err", err))
		return domain.User{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.log.Error("create user failed: hash password", slog.String("username", username), slog.Any("err", err))
		return domain.User{}, err
	}

	user, err := s.users.CreateUser(ctx, domain.User{Username: username, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateUsername) {
			s.log.Error("create user failed: username not unique", slog.String("username", username))
			return domain.User{}, err
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("create user success", slog.String("username", user.Username), slog.Int64("user_id", user.ID))
	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id int64) (domain.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.log.Error("failed to find user", slog.Int64("user_id", id))
	}
	return user, err
}

func (s *UserService) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.log.Error("failed to find user", slog.String("username", username))
	}
	return user, err
}
