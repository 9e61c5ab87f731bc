package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// RefreshService exchanges a refresh token for a new access token. Concurrent
// requests presenting the identical raw refresh token are collapsed into one
// verify-and-mint flight keyed by the token; every waiter receives that
// flight's outcome, and the key is dropped as soon as the flight resolves.
// Refresh tokens are not rotated on use, so the coordination is purely
// race-prevention, safe to reset on restart.
type RefreshService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	tokens *auth.TokenManager
	group  singleflight.Group
	logger logging.Logger
}

// NewRefreshService constructs a RefreshService.
func NewRefreshService(db *sql.DB, repos repomanager.RepositoryManager, tokens *auth.TokenManager, logger logging.Logger) *RefreshService {
	return &RefreshService{
		db:     db,
		repos:  repos,
		tokens: tokens,
		logger: logger.With("module", "refresh_service"),
	}
}

// Refresh verifies the refresh token (signature, expiry, AND ledger
// membership) and mints a new access token. All verification failures are
// reported as common.ErrUnauthorized; a vanished user as common.ErrNotFound.
func (s *RefreshService) Refresh(ctx context.Context, rawRefreshToken string) (string, error) {
	// The flight may outlive the first caller, so it must not inherit that
	// caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(rawRefreshToken, func() (any, error) {
		return s.verifyAndMint(flightCtx, rawRefreshToken)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *RefreshService) verifyAndMint(ctx context.Context, rawRefreshToken string) (string, error) {
	claims, err := s.tokens.VerifyRefreshToken(rawRefreshToken)
	if err != nil {
		if errors.Is(err, common.ErrConfig) {
			return "", common.ErrConfig
		}
		return "", common.ErrUnauthorized
	}

	ok, err := s.repos.RefreshTokens(s.db).IsValid(ctx, rawRefreshToken, claims.UserID)
	if err != nil {
		return "", fmt.Errorf("error checking refresh token: %w", err)
	}
	if !ok {
		// Well-formed signature but no live ledger row: revoked, expired
		// server-side, or never issued by us.
		return "", common.ErrUnauthorized
	}

	user, err := s.repos.Users(s.db).GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("error searching user: %w", err)
	}

	access, err := s.tokens.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error(ctx, "access token issue failed", "error", err)
		return "", common.ErrConfig
	}
	return access, nil
}
