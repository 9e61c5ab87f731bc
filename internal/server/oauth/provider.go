// Package oauth adapts external OAuth providers behind a narrow interface:
// authorization URL generation, code exchange, and profile fetch. Provider
// failures surface as ordinary errors; callers decide how to degrade.
package oauth

import (
	"context"

	"golang.org/x/oauth2"
)

// Profile is the verified third-party identity handed to the identity
// resolver.
type Profile struct {
	ProviderName   string
	ProviderUserID string
	Email          string
	FullName       string
	AvatarURL      string
}

// Provider is the adapter contract for a single external OAuth provider.
type Provider interface {
	// Name is the stable provider identifier stored in identity links.
	Name() string

	// AuthCodeURL returns the provider consent-screen URL for the state.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for provider tokens.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchProfile retrieves the user's profile with the given tokens.
	FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error)
}
