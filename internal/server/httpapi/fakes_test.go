package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/oauth"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

type stubSessions struct {
	user      *models.PublicUser
	pair      *services.TokenPair
	err       error
	issuePair *services.TokenPair
	issueErr  error
	loggedOut []string
	logoutErr error
}

func (s *stubSessions) Register(ctx context.Context, email, password, fullName string) (*models.PublicUser, *services.TokenPair, error) {
	return s.user, s.pair, s.err
}

func (s *stubSessions) Login(ctx context.Context, email, password string) (*models.PublicUser, *services.TokenPair, error) {
	return s.user, s.pair, s.err
}

func (s *stubSessions) Logout(ctx context.Context, rawRefreshToken string) error {
	s.loggedOut = append(s.loggedOut, rawRefreshToken)
	return s.logoutErr
}

func (s *stubSessions) CurrentUser(ctx context.Context, userID string) (*models.PublicUser, error) {
	return s.user, s.err
}

func (s *stubSessions) IssueTokens(ctx context.Context, user *models.User) (*services.TokenPair, error) {
	return s.issuePair, s.issueErr
}

type stubRefresher struct {
	access string
	err    error
}

func (s *stubRefresher) Refresh(ctx context.Context, rawRefreshToken string) (string, error) {
	return s.access, s.err
}

type stubIdentities struct {
	user     *models.User
	err      error
	resolved []services.ResolvedIdentity
}

func (s *stubIdentities) Resolve(ctx context.Context, identity services.ResolvedIdentity) (*models.User, error) {
	s.resolved = append(s.resolved, identity)
	return s.user, s.err
}

type stubResets struct {
	requestErr error
	redeemErr  error
	requested  []string
}

func (s *stubResets) Request(ctx context.Context, email string) error {
	s.requested = append(s.requested, email)
	return s.requestErr
}

func (s *stubResets) Redeem(ctx context.Context, token, newPassword string) error {
	return s.redeemErr
}

type fakeProvider struct {
	profile     *oauth.Profile
	exchangeErr error
	profileErr  error
}

func (p *fakeProvider) Name() string { return "google" }

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/consent?state=" + state
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return &oauth2.Token{AccessToken: "provider-access"}, nil
}

func (p *fakeProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*oauth.Profile, error) {
	return p.profile, p.profileErr
}

type serverDeps struct {
	sessions   *stubSessions
	refresher  *stubRefresher
	identities *stubIdentities
	resets     *stubResets
	provider   oauth.Provider
	tokens     *auth.TokenManager
}

func testTokenManager() *auth.TokenManager {
	return auth.NewTokenManager("access-secret", "refresh-secret", "reset-secret",
		15*time.Minute, 7*24*time.Hour, time.Hour)
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestApp(t *testing.T, deps serverDeps) *fiber.App {
	t.Helper()
	if deps.sessions == nil {
		deps.sessions = &stubSessions{}
	}
	if deps.refresher == nil {
		deps.refresher = &stubRefresher{}
	}
	if deps.identities == nil {
		deps.identities = &stubIdentities{}
	}
	if deps.resets == nil {
		deps.resets = &stubResets{}
	}
	if deps.tokens == nil {
		deps.tokens = testTokenManager()
	}
	srv, err := NewHTTPServer(":0", "https://app.example.com", testLogger(),
		deps.sessions, deps.refresher, deps.identities, deps.resets, deps.provider, deps.tokens)
	require.NoError(t, err)
	return srv.newApp()
}

func postJSON(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}
