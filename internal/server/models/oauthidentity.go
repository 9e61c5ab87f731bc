package models

import "time"

// OAuthIdentity links a third-party identity to an internal user.
// The (ProviderName, ProviderUserID) pair is unique; rows are never mutated
// after creation.
type OAuthIdentity struct {
	ProviderName   string
	ProviderUserID string
	UserID         string
	CreatedAt      time.Time
}
