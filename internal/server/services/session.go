// Package services contains server-side business logic. This file implements
// SessionService, which handles registration, login, logout, and minting
// access/refresh token pairs backed by the refresh-token ledger.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// bcryptCost matches the adaptive-hashing work factor used for all stored
// password hashes.
const bcryptCost = 10

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// SessionService provides authentication-related operations:
// - Register: validate input, create the user, mint a token pair
// - Login: verify credentials and mint a token pair
// - Logout: revoke a single refresh token
// - CurrentUser: resolve the public projection for a verified access token
type SessionService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	tokens *auth.TokenManager
	logger logging.Logger
}

// NewSessionService constructs a SessionService.
func NewSessionService(db *sql.DB, repos repomanager.RepositoryManager, tokens *auth.TokenManager, logger logging.Logger) *SessionService {
	return &SessionService{
		db:     db,
		repos:  repos,
		tokens: tokens,
		logger: logger.With("module", "session_service"),
	}
}

// Register creates a user with a bcrypt-hashed password and returns the
// public user plus a freshly minted token pair.
func (s *SessionService) Register(ctx context.Context, email, password, fullName string) (*models.PublicUser, *TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !emailPattern.MatchString(email) || fullName == "" {
		return nil, nil, common.ErrValidation
	}
	if len(password) < common.MinPasswordLength {
		return nil, nil, common.ErrValidation
	}

	repo := s.repos.Users(s.db)
	if _, err := repo.GetByEmail(ctx, email); err == nil {
		return nil, nil, common.ErrConflict
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, nil, fmt.Errorf("error checking email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, nil, common.ErrInternal
	}

	user, err := repo.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		IsActive:     true,
	})
	if err != nil {
		// Lost a registration race for the same email.
		if errors.Is(err, common.ErrConflict) {
			return nil, nil, common.ErrConflict
		}
		return nil, nil, fmt.Errorf("error creating user: %w", err)
	}

	pair, err := s.mintTokenPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user.Public(), pair, nil
}

// Login verifies the password against the stored hash and, on success,
// returns the public user and a new token pair. Unknown email, passwordless
// account, and wrong password all collapse into common.ErrUnauthorized.
func (s *SessionService) Login(ctx context.Context, email, password string) (*models.PublicUser, *TokenPair, error) {
	repo := s.repos.Users(s.db)
	user, err := repo.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil, common.ErrUnauthorized
		}
		return nil, nil, fmt.Errorf("error searching user: %w", err)
	}
	if !user.HasPassword() {
		return nil, nil, common.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil, common.ErrUnauthorized
	}

	pair, err := s.mintTokenPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user.Public(), pair, nil
}

// Logout revokes the presented refresh token. Idempotent: a token that was
// never issued, or was already revoked, logs out just as successfully.
func (s *SessionService) Logout(ctx context.Context, rawRefreshToken string) error {
	if err := s.repos.RefreshTokens(s.db).Revoke(ctx, rawRefreshToken); err != nil {
		return fmt.Errorf("error revoking refresh token: %w", err)
	}
	return nil
}

// CurrentUser returns the public projection for a user id taken from a
// verified access token. common.ErrNotFound means the account was deleted
// after the token was issued.
func (s *SessionService) CurrentUser(ctx context.Context, userID string) (*models.PublicUser, error) {
	user, err := s.repos.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}
	return user.Public(), nil
}

// IssueTokens mints a token pair for an already-authenticated user, e.g. one
// resolved through an OAuth provider.
func (s *SessionService) IssueTokens(ctx context.Context, user *models.User) (*TokenPair, error) {
	return s.mintTokenPair(ctx, user)
}

// mintTokenPair issues an access+refresh pair and records the refresh hash in
// the ledger. The raw refresh token leaves this method only in the response.
func (s *SessionService) mintTokenPair(ctx context.Context, user *models.User) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error(ctx, "access token issue failed", "error", err)
		return nil, common.ErrConfig
	}
	refresh, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		s.logger.Error(ctx, "refresh token issue failed", "error", err)
		return nil, common.ErrConfig
	}
	expiresAt := time.Now().Add(s.tokens.RefreshTTL())
	if err := s.repos.RefreshTokens(s.db).Store(ctx, user.ID, refresh, expiresAt); err != nil {
		return nil, fmt.Errorf("error storing refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
