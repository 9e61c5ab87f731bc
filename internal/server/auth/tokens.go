// Package auth implements the token codec: issuing and verifying the three
// signed token kinds (access, refresh, password reset), each under its own
// HMAC secret. The codec is pure and owns no state beyond its configuration.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// AccessClaims is the payload of a short-lived access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// RefreshClaims is the payload of a long-lived refresh token.
type RefreshClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// resetClaims is the payload of a single-use password-reset token. The purpose
// tag guards against a reset-secret token being accepted for any other flow.
type resetClaims struct {
	jwt.RegisteredClaims
	UserID  string `json:"user_id"`
	Purpose string `json:"purpose"`
}

// TokenManager signs and verifies tokens. Each token kind uses a distinct
// secret so that a leaked key compromises only one class of credential.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	resetSecret   []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	resetTTL      time.Duration
}

// NewTokenManager constructs a TokenManager. Empty secrets are tolerated here
// and reported as common.ErrConfig at issue/verify time, so a misconfigured
// secret fails loudly on first use rather than silently signing with "".
func NewTokenManager(accessSecret, refreshSecret, resetSecret string, accessTTL, refreshTTL, resetTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		resetSecret:   []byte(resetSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		resetTTL:      resetTTL,
	}
}

// IssueAccessToken signs {userID, email} with the access secret.
func (m *TokenManager) IssueAccessToken(userID, email string) (string, error) {
	if len(m.accessSecret) == 0 {
		return "", common.ErrConfig
	}
	claims := AccessClaims{
		RegisteredClaims: registered(m.accessTTL),
		UserID:           userID,
		Email:            email,
	}
	return sign(claims, m.accessSecret)
}

// VerifyAccessToken parses and validates an access token.
func (m *TokenManager) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	if len(m.accessSecret) == 0 {
		return nil, common.ErrConfig
	}
	claims := &AccessClaims{}
	if err := parse(tokenString, claims, m.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// IssueRefreshToken signs {userID} with the refresh secret.
func (m *TokenManager) IssueRefreshToken(userID string) (string, error) {
	if len(m.refreshSecret) == 0 {
		return "", common.ErrConfig
	}
	claims := RefreshClaims{
		RegisteredClaims: registered(m.refreshTTL),
		UserID:           userID,
	}
	return sign(claims, m.refreshSecret)
}

// VerifyRefreshToken parses and validates a refresh token. The ledger lookup
// is a separate step; a verified signature alone does not make a refresh
// token acceptable.
func (m *TokenManager) VerifyRefreshToken(tokenString string) (*RefreshClaims, error) {
	if len(m.refreshSecret) == 0 {
		return nil, common.ErrConfig
	}
	claims := &RefreshClaims{}
	if err := parse(tokenString, claims, m.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// RefreshTTL returns the configured refresh token lifetime.
func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// IssuePasswordResetToken signs {userID, purpose} with the reset secret.
func (m *TokenManager) IssuePasswordResetToken(userID string) (string, error) {
	if len(m.resetSecret) == 0 || m.resetTTL <= 0 {
		return "", common.ErrConfig
	}
	claims := resetClaims{
		RegisteredClaims: registered(m.resetTTL),
		UserID:           userID,
		Purpose:          common.PasswordResetPurpose,
	}
	return sign(claims, m.resetSecret)
}

// VerifyPasswordResetToken returns the bound user id and true for a valid
// reset token. Expired, malformed, wrongly signed, and wrong-purpose tokens
// all report ("", false): the caller never learns which check failed.
func (m *TokenManager) VerifyPasswordResetToken(tokenString string) (string, bool) {
	if len(m.resetSecret) == 0 {
		return "", false
	}
	claims := &resetClaims{}
	if err := parse(tokenString, claims, m.resetSecret); err != nil {
		return "", false
	}
	if claims.Purpose != common.PasswordResetPurpose {
		return "", false
	}
	return claims.UserID, true
}

func registered(ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func sign(claims jwt.Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

func parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, common.ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return common.ErrInvalidToken
	}
	if !token.Valid {
		return common.ErrInvalidToken
	}
	return nil
}
