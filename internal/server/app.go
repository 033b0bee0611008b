// Package server assembles the payment gateway: storage, crypto, services,
// the REST API and the gRPC health probe, plus graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/paygate/internal/cryptox"
	"github.com/dmitrijs2005/paygate/internal/dbx"
	"github.com/dmitrijs2005/paygate/internal/logging"
	"github.com/dmitrijs2005/paygate/internal/server/auth"
	"github.com/dmitrijs2005/paygate/internal/server/config"
	"github.com/dmitrijs2005/paygate/internal/server/metrics"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/memory"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/paygate/internal/server/rest"
	"github.com/dmitrijs2005/paygate/internal/server/services"

	gs "github.com/dmitrijs2005/paygate/internal/server/grpc"
)

// MemoryDSN selects the in-process store instead of PostgreSQL.
const MemoryDSN = "memory:"

type App struct {
	config   *config.Config
	logger   logging.Logger
	store    dbx.Store
	closer   io.Closer
	handler  http.Handler
	webhooks *services.WebhookSender
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStorage returns the store, the repositories bound to it and a closer.
func openStorage(ctx context.Context, dsn string) (dbx.Store, repomanager.RepositoryManager, io.Closer, error) {
	if strings.HasPrefix(dsn, MemoryDSN) {
		db := memory.New()
		return db, db, nopCloser{}, nil
	}

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, nil, nil, fmt.Errorf("migrations error: %w", err)
	}

	return dbx.NewSQLStore(sqlDB), rm, sqlDB, nil
}

func NewApp(c *config.Config) (*App, error) {
	return newApp(context.Background(), c, logging.NewJSONLogger(os.Stdout, c.LogLevel))
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {

	if err := c.Validate(); err != nil {
		return nil, err
	}

	cipher, err := cryptox.NewSecretCipherFromBase64(c.EncryptionKey)
	if err != nil {
		return nil, err
	}

	signer, err := cryptox.NewSigner(c.HMACAlgorithm)
	if err != nil {
		return nil, err
	}

	store, repos, closer, err := openStorage(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	issuer := auth.NewIssuer(c.AccessTokenSecret, c.RefreshTokenSecret, c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)
	hasher := cryptox.NewPasswordHasher(cryptox.DefaultArgon2Params())

	users := services.NewUserService(store, repos, hasher, logger)
	tokens := services.NewTokenService(store, repos, issuer, logger, m)
	merchants := services.NewMerchantService(store, repos, cipher, logger)
	verifier := services.NewRequestVerifier(merchants, signer, c.ReplayWindow, logger, m)
	webhooks := services.NewWebhookSender(nil, signer, c.WebhookTimeout, logger, m)
	checkout := services.NewCheckoutService(store, repos, merchants, signer, webhooks, nil, c.CheckoutSessionTTL, logger, m)

	handler, err := rest.NewRouter(rest.RouterConfig{
		Users:         users,
		Tokens:        tokens,
		Merchants:     merchants,
		Verifier:      verifier,
		Checkout:      checkout,
		Health:        rest.NewHealthHandler(store),
		Logger:        logger,
		Metrics:       m,
		AuthRateLimit: c.AuthRateLimit,
		SecureCookie:  c.CookieSecure,
		Development:   c.Development,
	})
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	return &App{
		config:   c,
		logger:   logger,
		store:    store,
		closer:   closer,
		handler:  handler,
		webhooks: webhooks,
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

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.store, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := rest.NewServer(app.config.EndpointAddrHTTP, app.handler, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled, a signal arrives or a server fails.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	// in-flight webhook deliveries carry their own timeout
	app.webhooks.Wait()

	if err := app.closer.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}

	app.logger.Info(ctx, "App stopped")
}
