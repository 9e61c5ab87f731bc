package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

// message writes the JSON message envelope used across all endpoints.
func message(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"message": msg})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type passwordRedeemRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (s *HTTPServer) register(c *fiber.Ctx) error {

	s.logger.Info(c.UserContext(), "Registration request")

	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return message(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" || req.FullName == "" {
		return message(c, fiber.StatusBadRequest, "Email, password, and full name are required")
	}

	user, pair, err := s.sessions.Register(c.UserContext(), req.Email, req.Password, req.FullName)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrValidation):
			return message(c, fiber.StatusBadRequest, "Invalid email format or password too short")
		case errors.Is(err, common.ErrConflict):
			return message(c, fiber.StatusConflict, "User with this email already exists")
		default:
			s.logger.Error(c.UserContext(), "registration failed", "error", err)
			return message(c, fiber.StatusInternalServerError, "Internal server error during registration")
		}
	}

	s.logger.Info(c.UserContext(), "Registered", "email", user.Email)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully",
		"user":    user,
		"tokens":  pair,
	})
}

func (s *HTTPServer) login(c *fiber.Ctx) error {

	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return message(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return message(c, fiber.StatusBadRequest, "Email and password are required")
	}

	user, pair, err := s.sessions.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			return message(c, fiber.StatusUnauthorized, "Invalid email or password")
		}
		s.logger.Error(c.UserContext(), "login failed", "error", err)
		return message(c, fiber.StatusInternalServerError, "Internal server error during login")
	}

	return c.JSON(fiber.Map{
		"message": "User logged in successfully",
		"user":    user,
		"tokens":  pair,
	})
}

func (s *HTTPServer) refreshToken(c *fiber.Ctx) error {

	var req refreshTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return message(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.RefreshToken == "" {
		return message(c, fiber.StatusBadRequest, "Refresh token is required")
	}

	access, err := s.refresher.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrUnauthorized):
			return message(c, fiber.StatusUnauthorized, "Invalid or expired refresh token")
		case errors.Is(err, common.ErrNotFound):
			return message(c, fiber.StatusNotFound, "User not found for refresh token")
		case errors.Is(err, common.ErrConfig):
			return message(c, fiber.StatusInternalServerError, "Server configuration error for token refresh.")
		default:
			s.logger.Error(c.UserContext(), "token refresh failed", "error", err)
			return message(c, fiber.StatusInternalServerError, "Internal server error during token refresh")
		}
	}

	return c.JSON(fiber.Map{"accessToken": access})
}

func (s *HTTPServer) logout(c *fiber.Ctx) error {

	var req refreshTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return message(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.RefreshToken == "" {
		return message(c, fiber.StatusBadRequest, "Refresh token is required")
	}

	if err := s.sessions.Logout(c.UserContext(), req.RefreshToken); err != nil {
		s.logger.Error(c.UserContext(), "logout failed", "error", err)
		return message(c, fiber.StatusInternalServerError, "Internal server error during logout")
	}

	return message(c, fiber.StatusOK, "Logged out successfully")
}

func (s *HTTPServer) currentUser(c *fiber.Ctx) error {

	claims, ok := claimsFromLocals(c)
	if !ok {
		return message(c, fiber.StatusUnauthorized, "Not authenticated")
	}

	user, err := s.sessions.CurrentUser(c.UserContext(), claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return message(c, fiber.StatusNotFound, "User not found")
		}
		s.logger.Error(c.UserContext(), "current user lookup failed", "error", err)
		return message(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return c.JSON(fiber.Map{"user": user})
}

func (s *HTTPServer) requestPasswordReset(c *fiber.Ctx) error {

	var req passwordResetRequest
	if err := c.BodyParser(&req); err != nil {
		return message(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Email == "" {
		return message(c, fiber.StatusBadRequest, "Email is required")
	}

	if err := s.resets.Request(c.UserContext(), req.Email); err != nil {
		if errors.Is(err, common.ErrConfig) {
			return message(c, fiber.StatusInternalServerError, "Server configuration error. Please try again later.")
		}
		s.logger.Error(c.UserContext(), "password reset request failed", "error", err)
		return message(c, fiber.StatusInternalServerError, "Internal server error")
	}

	// Same answer whether or not the address is registered.
	return message(c, fiber.StatusOK, "If your email is registered, you will receive a password reset link.")
}

func (s *HTTPServer) resetPassword(c *fiber.Ctx) error {

	var req passwordRedeemRequest
	if err := c.BodyParser(&req); err != nil {
		return message(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Token == "" || req.NewPassword == "" {
		return message(c, fiber.StatusBadRequest, "Token and new password are required")
	}

	err := s.resets.Redeem(c.UserContext(), req.Token, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrValidation):
			return message(c, fiber.StatusBadRequest, "Password must be at least 6 characters long")
		case errors.Is(err, common.ErrUnauthorized):
			return message(c, fiber.StatusUnauthorized, "Invalid or expired password reset token")
		case errors.Is(err, common.ErrNotFound):
			return message(c, fiber.StatusNotFound, "User not found for the provided token.")
		case errors.Is(err, common.ErrNotApplicable):
			return message(c, fiber.StatusBadRequest, "Password reset is not applicable for OAuth users without a set password.")
		case errors.Is(err, common.ErrConfig):
			return message(c, fiber.StatusInternalServerError, "Server configuration error. Please try again later.")
		default:
			s.logger.Error(c.UserContext(), "password reset failed", "error", err)
			return message(c, fiber.StatusInternalServerError, "Internal server error")
		}
	}

	return message(c, fiber.StatusOK, "Password has been reset successfully")
}

const oauthStateCookie = "oauth_state"

func (s *HTTPServer) oauthStart(c *fiber.Ctx) error {

	state, err := randomState()
	if err != nil {
		s.logger.Error(c.UserContext(), "state generation failed", "error", err)
		return message(c, fiber.StatusInternalServerError, "Internal server error")
	}

	c.Cookie(&fiber.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Expires:  time.Now().Add(10 * time.Minute),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.Redirect(s.provider.AuthCodeURL(state), fiber.StatusTemporaryRedirect)
}

func (s *HTTPServer) oauthCallback(c *fiber.Ctx) error {

	if providerErr := c.Query("error"); providerErr != "" {
		s.logger.Error(c.UserContext(), "OAuth provider error", "error", providerErr)
		return s.oauthFailed(c, providerErr)
	}

	code := c.Query("code")
	if code == "" {
		return s.oauthFailed(c, "authorization_code_missing")
	}

	state := c.Query("state")
	if state == "" || state != c.Cookies(oauthStateCookie) {
		return s.oauthFailed(c, "invalid_state")
	}
	c.ClearCookie(oauthStateCookie)

	token, err := s.provider.Exchange(c.UserContext(), code)
	if err != nil {
		s.logger.Error(c.UserContext(), "code exchange failed", "error", err)
		return s.oauthFailed(c, "code_exchange_failed")
	}

	profile, err := s.provider.FetchProfile(c.UserContext(), token)
	if err != nil {
		s.logger.Error(c.UserContext(), "profile fetch failed", "error", err)
		return s.oauthFailed(c, "profile_data_missing")
	}

	user, err := s.identities.Resolve(c.UserContext(), services.ResolvedIdentity{
		Provider:       profile.ProviderName,
		ProviderUserID: profile.ProviderUserID,
		Email:          profile.Email,
		FullName:       profile.FullName,
		AvatarURL:      profile.AvatarURL,
	})
	if err != nil {
		s.logger.Error(c.UserContext(), "identity resolution failed", "error", err)
		return s.oauthFailed(c, "user_processing_error")
	}

	pair, err := s.sessions.IssueTokens(c.UserContext(), user)
	if err != nil {
		s.logger.Error(c.UserContext(), "token minting failed", "error", err)
		return s.oauthFailed(c, "user_processing_error")
	}

	redirect := fmt.Sprintf("%s/oauth-callback?access_token=%s&refresh_token=%s",
		s.frontendURL, url.QueryEscape(pair.AccessToken), url.QueryEscape(pair.RefreshToken))
	return c.Redirect(redirect, fiber.StatusTemporaryRedirect)
}

// oauthFailed sends the browser back to the login page with an error marker.
func (s *HTTPServer) oauthFailed(c *fiber.Ctx, reason string) error {
	redirect := fmt.Sprintf("%s/login?error=oauth_failed&message=%s", s.frontendURL, url.QueryEscape(reason))
	return c.Redirect(redirect, fiber.StatusTemporaryRedirect)
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
