// Package server initializes and runs the authentication server.
// It opens the database, applies migrations, wires services onto their
// repositories, and starts the HTTP server with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/authkeeper/internal/server/notify"
	"github.com/dmitrijs2005/authkeeper/internal/server/oauth"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	sessions   *services.SessionService
	refresher  *services.RefreshService
	identities *services.IdentityService
	resets     *services.ResetService
	provider   oauth.Provider
	tokens     *auth.TokenManager
}

func NewApp(c *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	tokens := auth.NewTokenManager(
		c.AccessTokenSecret, c.RefreshTokenSecret, c.PasswordResetSecret,
		c.AccessTokenTTL, c.RefreshTokenTTL, c.PasswordResetTokenTTL,
	)

	var notifier services.Notifier
	if c.KafkaBroker != "" {
		notifier = notify.NewKafkaNotifier(c.KafkaBroker, c.KafkaTopic)
	} else {
		notifier = notify.NewNopNotifier(logger)
	}

	var provider oauth.Provider
	google := oauth.NewGoogleProvider(c.GoogleClientID, c.GoogleClientSecret, c.GoogleRedirectURL)
	if google.Configured() {
		provider = google
	}

	return &App{
		config:     c,
		logger:     logger,
		db:         db,
		sessions:   services.NewSessionService(db, repos, tokens, logger),
		refresher:  services.NewRefreshService(db, repos, tokens, logger),
		identities: services.NewIdentityService(db, repos, logger),
		resets:     services.NewResetService(db, repos, tokens, notifier, c.FrontendURL, logger),
		provider:   provider,
		tokens:     tokens,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s, err := httpapi.NewHTTPServer(
		app.config.EndpointAddrHTTP, app.config.FrontendURL, app.logger,
		app.sessions, app.refresher, app.identities, app.resets,
		app.provider, app.tokens,
	)

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	} else {

		if err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
