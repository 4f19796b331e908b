package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/nkiryanov/weddingplanner/internal/db"
	"github.com/nkiryanov/weddingplanner/internal/handlers"
	"github.com/nkiryanov/weddingplanner/internal/logger"
	"github.com/nkiryanov/weddingplanner/internal/repository"
	"github.com/nkiryanov/weddingplanner/internal/repository/mongo"
	"github.com/nkiryanov/weddingplanner/internal/repository/postgres"
	"github.com/nkiryanov/weddingplanner/internal/service/auth"
	"github.com/nkiryanov/weddingplanner/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/weddingplanner/internal/service/identity"
	"github.com/nkiryanov/weddingplanner/internal/service/user"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger logger.Logger

	// Release storage connections
	close func()
}

type store struct {
	users repository.UserRepo
	ping  func(ctx context.Context) error
	close func()
}

// Connect to the store DSN points to. Postgres schema is migrated, mongo indexes are created
func openStore(ctx context.Context, dsn string) (store, error) {
	driver, err := db.Driver(dsn)
	if err != nil {
		return store{}, err
	}

	switch driver {
	case db.DriverMongo:
		client, database, err := mongo.Connect(ctx, dsn)
		if err != nil {
			return store{}, err
		}
		return store{
			users: mongo.NewUserRepo(database),
			ping: func(ctx context.Context) error {
				return client.Ping(ctx, readpref.Primary())
			},
			close: func() { _ = client.Disconnect(context.Background()) },
		}, nil
	default:
		pool, err := db.ConnectAndMigrate(ctx, dsn)
		if err != nil {
			return store{}, err
		}
		return store{
			users: &postgres.UserRepo{DB: pool},
			ping:  pool.Ping,
			close: pool.Close,
		}, nil
	}
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Token manager first: no point in touching the database without signing key
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:        c.SecretKey,
		RefreshSecretKey: c.RefreshSecretKey,
		AccessTTL:        c.AccessTokenTTL,
		RefreshTTL:       c.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	if c.GoogleClientID == "" {
		logger.Warn("google client id is not set, google sign-in is disabled")
	}
	verifier, err := identity.NewGoogleVerifier(ctx, c.GoogleClientID)
	if err != nil {
		return nil, fmt.Errorf("error while creating google verifier. Err: %w", err)
	}

	// Connect to the database and prepare schema
	st, err := openStore(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize services
	authService, err := auth.NewService(auth.Config{Verifier: verifier, Logger: logger}, tokenManager, st.users)
	if err != nil {
		st.close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}
	userService := user.NewService(st.users)

	mux := handlers.NewRouter(
		handlers.RouterConfig{
			CORSOrigins:   c.CORSOrigins,
			AuthRateLimit: c.AuthRateLimit,
			HealthCheck:   st.ping,
		},
		authService,
		userService,
		logger,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     logger,
		close:      st.close,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

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

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
