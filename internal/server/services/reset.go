package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// Notifier delivers the password-reset link to the user. Delivery is
// fire-and-forget: failures are logged, never surfaced to the caller.
type Notifier interface {
	PasswordResetRequested(ctx context.Context, email, resetLink string) error
}

// ResetService implements the password reset flow: issuing single-use reset
// tokens and redeeming them for a new password.
type ResetService struct {
	db          *sql.DB
	repos       repomanager.RepositoryManager
	tokens      *auth.TokenManager
	notifier    Notifier
	frontendURL string
	logger      logging.Logger
}

// NewResetService constructs a ResetService.
func NewResetService(db *sql.DB, repos repomanager.RepositoryManager, tokens *auth.TokenManager, notifier Notifier, frontendURL string, logger logging.Logger) *ResetService {
	return &ResetService{
		db:          db,
		repos:       repos,
		tokens:      tokens,
		notifier:    notifier,
		frontendURL: frontendURL,
		logger:      logger.With("module", "reset_service"),
	}
}

// Request issues a reset token and hands the reset link to the notifier.
// For an unknown email it does nothing and still returns nil, so the caller
// cannot probe which addresses have accounts.
func (s *ResetService) Request(ctx context.Context, email string) error {
	user, err := s.repos.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.logger.Info(ctx, "password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("error searching user: %w", err)
	}

	token, err := s.tokens.IssuePasswordResetToken(user.ID)
	if err != nil {
		return common.ErrConfig
	}

	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)
	if err := s.notifier.PasswordResetRequested(ctx, user.Email, resetLink); err != nil {
		s.logger.Error(ctx, "reset notification failed", "error", err)
	}
	return nil
}

// Redeem verifies the reset token, updates the password hash, and revokes
// every refresh token of the user so all devices must re-authenticate.
// Accounts without a password (pure-OAuth) cannot be provisioned one here.
func (s *ResetService) Redeem(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < common.MinPasswordLength {
		return common.ErrValidation
	}

	userID, ok := s.tokens.VerifyPasswordResetToken(token)
	if !ok {
		return common.ErrUnauthorized
	}

	user, err := s.repos.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return fmt.Errorf("error searching user: %w", err)
	}
	if !user.HasPassword() {
		return common.ErrNotApplicable
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return common.ErrInternal
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Users(tx).UpdatePassword(ctx, user.ID, string(hash)); err != nil {
			return fmt.Errorf("error updating password: %w", err)
		}
		if err := s.repos.RefreshTokens(tx).RevokeAllForUser(ctx, user.ID); err != nil {
			return fmt.Errorf("error revoking refresh tokens: %w", err)
		}
		return nil
	})
}
