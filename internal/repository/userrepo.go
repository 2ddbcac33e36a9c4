// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/gymflow/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides access to accounts and their credentials.
type UserRepository interface {
	// Create inserts a new user together with its initial profile row.
	Create(ctx context.Context, u *model.User, p *model.Profile) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// SetPassword replaces the password hash and salt.
	SetPassword(ctx context.Context, id uuid.UUID, pwdHash, salt []byte) error
}
