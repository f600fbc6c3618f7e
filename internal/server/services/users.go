package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/plateful/plateful/internal/common"
	"github.com/plateful/plateful/internal/server/auth"
	"github.com/plateful/plateful/internal/server/hash"
	"github.com/plateful/plateful/internal/server/models"
	"github.com/plateful/plateful/internal/server/repositories/users"
)

// UserService manages curator accounts and issues access tokens.
type UserService struct {
	repo          users.Repository
	jwtSecret     []byte
	tokenValidity time.Duration
}

func NewUserService(repo users.Repository, jwtSecret string, tokenValidity time.Duration) *UserService {
	return &UserService{
		repo:          repo,
		jwtSecret:     []byte(jwtSecret),
		tokenValidity: tokenValidity,
	}
}

func (s *UserService) Register(ctx context.Context, username, password string) (*models.User, error) {
	passwordHash, err := hash.Password(password)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.Create(ctx, &models.User{
		Username:     username,
		PasswordHash: passwordHash,
	})
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	return user, nil
}

func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrUnauthorized
		}
		return "", common.ErrInternal
	}

	if err := hash.Compare(user.PasswordHash, password); err != nil {
		return "", common.ErrUnauthorized
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.tokenValidity)
	if err != nil {
		return "", common.ErrInternal
	}

	return token, nil
}

// ValidateToken returns the user id carried by a valid access token.
func (s *UserService) ValidateToken(token string) (string, error) {
	return auth.GetUserIDFromToken(token, s.jwtSecret)
}
