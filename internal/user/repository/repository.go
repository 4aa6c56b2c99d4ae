package repository

import (
	"context"
	"time"

	"storyhub/backend/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// UpdatePassword replaces the user's password hash. No-op if the user does not exist.
	UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error
	// SetStatus enables or disables the user account.
	SetStatus(ctx context.Context, userID string, status domain.UserStatus, at time.Time) error
}
