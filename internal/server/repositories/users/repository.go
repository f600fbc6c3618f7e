// Package users provides persistence for curator accounts.
package users

import (
	"context"

	"github.com/plateful/plateful/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}
