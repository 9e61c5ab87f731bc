package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	refreshtokensrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	usersrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// --- in-memory fakes ---

type memUsersRepo struct {
	mu         sync.Mutex
	byID       map[string]*models.User
	identities map[string]string // "provider/providerUserID" -> userID

	createErr error
	getErr    error
}

func newMemUsersRepo() *memUsersRepo {
	return &memUsersRepo{
		byID:       make(map[string]*models.User),
		identities: make(map[string]string),
	}
}

func (f *memUsersRepo) add(u *models.User) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(u.Email)
	f.byID[u.ID] = u
	return u
}

func (f *memUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == strings.ToLower(u.Email) {
			return nil, common.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	f.byID[u.ID] = u
	return u, nil
}

func (f *memUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *memUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, common.ErrNotFound
}

func (f *memUsersRepo) UpdatePassword(ctx context.Context, userID string, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return common.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

func (f *memUsersRepo) GetIdentity(ctx context.Context, providerName, providerUserID string) (*models.OAuthIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := providerName + "/" + providerUserID
	if userID, ok := f.identities[key]; ok {
		return &models.OAuthIdentity{ProviderName: providerName, ProviderUserID: providerUserID, UserID: userID}, nil
	}
	return nil, common.ErrNotFound
}

func (f *memUsersRepo) CreateIdentity(ctx context.Context, identity *models.OAuthIdentity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := identity.ProviderName + "/" + identity.ProviderUserID
	if _, ok := f.identities[key]; ok {
		return common.ErrConflict
	}
	f.identities[key] = identity.UserID
	return nil
}

func (f *memUsersRepo) identityCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.identities)
}

func (f *memUsersRepo) userCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

type memRefreshRepo struct {
	mu     sync.Mutex
	hashes map[string]*models.RefreshToken

	// lookupGate, when non-nil, blocks IsValid until closed.
	lookupGate    chan struct{}
	lookupCalls   int
	storeErr      error
	isValidErr    error
	revokeAllUser string
}

func newMemRefreshRepo() *memRefreshRepo {
	return &memRefreshRepo{hashes: make(map[string]*models.RefreshToken)}
}

func (f *memRefreshRepo) Store(ctx context.Context, userID string, rawToken string, expiresAt time.Time) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	h := refreshtokensrepo.HashToken(rawToken)
	f.hashes[h] = &models.RefreshToken{TokenHash: h, UserID: userID, ExpiresAt: expiresAt}
	return nil
}

func (f *memRefreshRepo) IsValid(ctx context.Context, rawToken string, userID string) (bool, error) {
	f.mu.Lock()
	f.lookupCalls++
	gate := f.lookupGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.isValidErr != nil {
		return false, f.isValidErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.hashes[refreshtokensrepo.HashToken(rawToken)]
	if !ok || rec.UserID != userID || rec.ExpiresAt.Before(time.Now()) {
		return false, nil
	}
	return true, nil
}

func (f *memRefreshRepo) Revoke(ctx context.Context, rawToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.hashes, refreshtokensrepo.HashToken(rawToken))
	return nil
}

func (f *memRefreshRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeAllUser = userID
	for h, rec := range f.hashes {
		if rec.UserID == userID {
			delete(f.hashes, h)
		}
	}
	return nil
}

func (f *memRefreshRepo) lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookupCalls
}

func (f *memRefreshRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.hashes)
}

type fakeRepoManager struct {
	u *memUsersRepo
	r *memRefreshRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{u: newMemUsersRepo(), r: newMemRefreshRepo()}
}

func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return m.r }
func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testTokenManager() *auth.TokenManager {
	return auth.NewTokenManager("access-secret", "refresh-secret", "reset-secret",
		15*time.Minute, 7*24*time.Hour, time.Hour)
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}
