// Package users declares the server-side repository contract for the
// credential store: user records and their OAuth identity links.
package users

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository defines operations over user rows and OAuth identity links.
// The credential store is the only writer of both tables.
type Repository interface {
	// Create inserts a new user, assigning its id. A duplicate email should
	// surface common.ErrConflict.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByEmail returns the user with the given (case-normalized) email.
	// Implementations should return common.ErrNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByID returns the user with the given id, or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.User, error)

	// UpdatePassword replaces the user's password hash and bumps updated_at.
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error

	// GetIdentity returns the OAuth identity link for the provider pair,
	// or common.ErrNotFound.
	GetIdentity(ctx context.Context, providerName, providerUserID string) (*models.OAuthIdentity, error)

	// CreateIdentity inserts a new OAuth identity link. A duplicate provider
	// pair should surface common.ErrConflict.
	CreateIdentity(ctx context.Context, identity *models.OAuthIdentity) error
}
