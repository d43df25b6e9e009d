package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/fireshare/internal/db"
	"github.com/nkiryanov/fireshare/internal/handlers"
	"github.com/nkiryanov/fireshare/internal/logger"
	"github.com/nkiryanov/fireshare/internal/metrics"
	"github.com/nkiryanov/fireshare/internal/repository"
	"github.com/nkiryanov/fireshare/internal/repository/memory"
	"github.com/nkiryanov/fireshare/internal/repository/postgres"
	"github.com/nkiryanov/fireshare/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/fireshare/internal/service/devices"
	"github.com/nkiryanov/fireshare/internal/service/lending"
	"github.com/nkiryanov/fireshare/internal/service/qrlogin"
	"github.com/nkiryanov/fireshare/internal/service/share"
	"github.com/nkiryanov/fireshare/internal/steam/webapi"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Logger     logger.Logger

	// Called after server stopped
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Token manager goes first: without secret there is nothing to serve
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	app := &ServerApp{
		ListenAddr: c.ListenAddr,
		Logger:     logger,
	}

	// Connect to the database and run migrations, or keep everything in memory
	var storage repository.Storage
	if c.DatabaseDSN != "" {
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		app.closers = append(app.closers, pool.Close)
		storage = postgres.NewStorage(pool)
	} else {
		logger.Warn("Database is not configured, data is kept in memory")
		storage = memory.NewStorage()
	}

	m := metrics.New()

	// Initialize services
	steamClient := webapi.NewClient(webapi.Config{
		Addr:    c.SteamAddr,
		Timeout: c.SteamTimeout,
		RPS:     c.SteamRPS,
	}, logger.WithGroup("steam"), m)

	resolver := devices.NewResolver(steamClient, logger, m)
	shareService := share.New(storage, resolver, logger, m)
	lendingService := lending.New(storage, resolver, c.FanoutLimit, logger)
	qrService := qrlogin.New(steamClient, storage, c.QRChallengeTTL, logger, m)

	app.Handler = handlers.NewRouter(
		tokenManager,
		shareService,
		lendingService,
		qrService,
		m,
		logger,
	)

	return app, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer func() {
		for _, closeFn := range s.closers {
			closeFn()
		}
	}()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.Logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.Logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.Logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
