package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// ResolvedIdentity is a third-party identity already authenticated by the
// OAuth provider adapter.
type ResolvedIdentity struct {
	Provider       string
	ProviderUserID string
	Email          string
	FullName       string
	AvatarURL      string
}

// IdentityService maps provider identities to internal users: by existing
// link, by email auto-link, or by creating a new account. Each resolution
// runs in a single transaction so a failed identity-link insert can never
// leave an orphaned user behind.
//
// The email auto-link step trusts the provider-asserted email as proof of
// account ownership.
type IdentityService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	logger logging.Logger
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(db *sql.DB, repos repomanager.RepositoryManager, logger logging.Logger) *IdentityService {
	return &IdentityService{
		db:     db,
		repos:  repos,
		logger: logger.With("module", "identity_service"),
	}
}

// Resolve returns the internal user for the given provider identity,
// creating the link and, if needed, the account. When two concurrent calls
// race on the same never-seen identity, the loser's unique-constraint
// violation triggers one retry, which then finds the winner's rows.
func (s *IdentityService) Resolve(ctx context.Context, identity ResolvedIdentity) (*models.User, error) {
	if identity.Provider == "" || identity.ProviderUserID == "" || identity.Email == "" {
		return nil, common.ErrValidation
	}
	identity.Email = strings.ToLower(identity.Email)

	user, err := s.resolveTx(ctx, identity)
	if errors.Is(err, common.ErrConflict) {
		user, err = s.resolveTx(ctx, identity)
	}
	return user, err
}

func (s *IdentityService) resolveTx(ctx context.Context, identity ResolvedIdentity) (*models.User, error) {
	var user *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Users(tx)

		// 1. Existing link for this provider identity.
		link, err := repo.GetIdentity(ctx, identity.Provider, identity.ProviderUserID)
		if err == nil {
			user, err = repo.GetByID(ctx, link.UserID)
			if errors.Is(err, common.ErrNotFound) {
				// The link points at a user row that no longer exists.
				s.logger.Error(ctx, "identity link references missing user",
					"provider", identity.Provider, "user_id", link.UserID)
				return common.ErrInternal
			}
			return err
		}
		if !errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("error searching identity: %w", err)
		}

		// 2. Existing account with the provider-asserted email: auto-link.
		user, err = repo.GetByEmail(ctx, identity.Email)
		if err == nil {
			err = repo.CreateIdentity(ctx, &models.OAuthIdentity{
				ProviderName:   identity.Provider,
				ProviderUserID: identity.ProviderUserID,
				UserID:         user.ID,
			})
			if errors.Is(err, common.ErrConflict) {
				// A concurrent resolve linked the same identity first; accept
				// it as ours when it points at the same user.
				if link, lookupErr := repo.GetIdentity(ctx, identity.Provider, identity.ProviderUserID); lookupErr == nil && link.UserID == user.ID {
					return nil
				}
			}
			return err
		}
		if !errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("error searching user: %w", err)
		}

		// 3. First login: create the account and the link atomically.
		user, err = repo.Create(ctx, &models.User{
			Email:     identity.Email,
			FullName:  identity.FullName,
			AvatarURL: identity.AvatarURL,
			IsActive:  true,
		})
		if err != nil {
			return err
		}
		return repo.CreateIdentity(ctx, &models.OAuthIdentity{
			ProviderName:   identity.Provider,
			ProviderUserID: identity.ProviderUserID,
			UserID:         user.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
