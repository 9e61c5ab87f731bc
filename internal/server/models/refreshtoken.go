package models

import "time"

// RefreshToken is a ledger row for an issued refresh token. Only the SHA-256
// hash of the signed token is stored; the raw token never touches the database.
type RefreshToken struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
}
