// Package refreshtokens declares the refresh-token ledger contract. The
// ledger gives stateless signed tokens real revocability: a refresh token is
// accepted only while its hash row exists and has not expired.
package refreshtokens

import (
	"context"
	"time"
)

// Repository defines operations for recording, validating, and revoking
// refresh tokens. Implementations store only a one-way hash of the raw token.
type Repository interface {
	// Store records the hash of rawToken for userID with the given expiry.
	Store(ctx context.Context, userID string, rawToken string, expiresAt time.Time) error

	// IsValid reports whether a non-expired row matches both the token hash
	// and the user id.
	IsValid(ctx context.Context, rawToken string, userID string) (bool, error)

	// Revoke deletes the row matching the token hash. Revoking an absent
	// token is not an error.
	Revoke(ctx context.Context, rawToken string) error

	// RevokeAllForUser deletes every row for the user, forcing
	// re-authentication on all devices.
	RevokeAllForUser(ctx context.Context, userID string) error
}
