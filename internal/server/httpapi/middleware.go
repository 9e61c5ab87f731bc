package httpapi

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
)

const bearerPrefix = "Bearer "

// userLocalsKey is where RequireAuth stores the verified access claims.
const userLocalsKey = "user"

// RequireAuth guards a route with bearer access-token verification.
//
// Status mapping:
//   - missing or malformed Authorization header: 401
//   - expired token: 401 (the client should refresh)
//   - invalid token: 403 (the client should re-authenticate)
//   - verifier misconfiguration: 500
//
// On success the access claims are stored in c.Locals under "user".
func RequireAuth(tokens *auth.TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(common.AuthorizationHeaderName)
		if header == "" || !strings.HasPrefix(header, bearerPrefix) {
			return message(c, fiber.StatusUnauthorized, "Authorization header missing or malformed")
		}

		raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if raw == "" {
			return message(c, fiber.StatusUnauthorized, "Token not found")
		}

		claims, err := tokens.VerifyAccessToken(raw)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrTokenExpired):
				return message(c, fiber.StatusUnauthorized, "Token expired")
			case errors.Is(err, common.ErrConfig):
				return message(c, fiber.StatusInternalServerError, "Server configuration error")
			default:
				return message(c, fiber.StatusForbidden, "Invalid token")
			}
		}

		c.Locals(userLocalsKey, claims)
		return c.Next()
	}
}

// claimsFromLocals retrieves what RequireAuth stored. The second value is
// false on routes that skipped the middleware.
func claimsFromLocals(c *fiber.Ctx) (*auth.AccessClaims, bool) {
	claims, ok := c.Locals(userLocalsKey).(*auth.AccessClaims)
	return claims, ok
}
