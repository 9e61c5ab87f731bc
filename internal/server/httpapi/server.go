// Package httpapi exposes the authentication service over HTTP. It owns the
// fiber application, route registration, the access-token middleware, and the
// mapping from service errors to response statuses.
package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/oauth"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

// Sessions is the slice of session behaviour the HTTP layer depends on.
type Sessions interface {
	Register(ctx context.Context, email, password, fullName string) (*models.PublicUser, *services.TokenPair, error)
	Login(ctx context.Context, email, password string) (*models.PublicUser, *services.TokenPair, error)
	Logout(ctx context.Context, rawRefreshToken string) error
	CurrentUser(ctx context.Context, userID string) (*models.PublicUser, error)
	IssueTokens(ctx context.Context, user *models.User) (*services.TokenPair, error)
}

// Refresher exchanges a live refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, rawRefreshToken string) (string, error)
}

// Identities resolves a provider identity to an internal user.
type Identities interface {
	Resolve(ctx context.Context, identity services.ResolvedIdentity) (*models.User, error)
}

// Resets drives the password reset flow.
type Resets interface {
	Request(ctx context.Context, email string) error
	Redeem(ctx context.Context, token, newPassword string) error
}

type HTTPServer struct {
	address     string
	frontendURL string
	sessions    Sessions
	refresher   Refresher
	identities  Identities
	resets      Resets
	provider    oauth.Provider
	tokens      *auth.TokenManager
	logger      logging.Logger
}

// NewHTTPServer constructs the HTTP front. provider may be nil; the OAuth
// routes then answer 404.
func NewHTTPServer(address, frontendURL string, l logging.Logger, sessions Sessions, refresher Refresher, identities Identities, resets Resets, provider oauth.Provider, tokens *auth.TokenManager) (*HTTPServer, error) {
	return &HTTPServer{
		address:     address,
		frontendURL: frontendURL,
		logger:      l.With("module", "http_server"),
		sessions:    sessions,
		refresher:   refresher,
		identities:  identities,
		resets:      resets,
		provider:    provider,
		tokens:      tokens,
	}, nil
}

// newApp builds the fiber application with all routes registered. Split from
// Run so tests can exercise routes via app.Test without binding a socket.
func (s *HTTPServer) newApp() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(cors.New(cors.Config{
		AllowOrigins: s.frontendURL,
		AllowHeaders: "Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	api := app.Group("/api/auth")
	api.Post("/register", s.register)
	api.Post("/login", s.login)
	api.Post("/refresh-token", s.refreshToken)
	api.Post("/logout", s.logout)
	api.Get("/me", RequireAuth(s.tokens), s.currentUser)
	api.Post("/request-password-reset", s.requestPasswordReset)
	api.Post("/reset-password", s.resetPassword)

	if s.provider != nil {
		api.Get("/google", s.oauthStart)
		api.Get("/google/callback", s.oauthCallback)
	}

	return app
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {

	app := s.newApp()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := app.Listen(s.address); err != nil {
		return err
	}

	return nil
}
