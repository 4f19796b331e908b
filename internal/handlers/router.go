package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/weddingplanner/internal/handlers/middleware"
	"github.com/nkiryanov/weddingplanner/internal/logger"
	"github.com/nkiryanov/weddingplanner/internal/models"
	"github.com/nkiryanov/weddingplanner/internal/service/auth"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	// Browser origins allowed to call the api. Any if empty
	CORSOrigins []string

	// Requests per minute per client IP to /api/auth/. Zero is default, negative disables the limit
	AuthRateLimit int

	// Reports storage health. Health check always succeeds if nil
	HealthCheck func(ctx context.Context) error
}

func NewRouter(
	cfg RouterConfig,
	authService authService,
	userService userService,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService, logger)

	api := http.NewServeMux()

	api.Handle("POST /auth/register", handleRegister(authService, logger))
	api.Handle("POST /auth/login", handleLogin(authService, logger))
	api.Handle("POST /auth/google", handleGoogleSignIn(authService, logger))
	api.Handle("POST /auth/refresh", handleRefresh(authService, logger))
	api.Handle("POST /auth/logout", handleLogout(authService, logger))

	api.Handle("GET /users/me", withAuth(handleGetMe(userService, logger)))
	api.Handle("PATCH /users/me", withAuth(handleUpdateMe(userService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("GET /healthz", handleHealth(cfg.HealthCheck, logger))

	return chain(root,
		middleware.Recovery(logger),
		middleware.LoggerMiddleware(logger),
		middleware.CORS(cfg.CORSOrigins),
		middleware.NewRateLimiter("/api/auth/", cfg.AuthRateLimit).Handler,
	)
}

type authService interface {
	// Create user; has to return validation or apperrors.ErrUserAlreadyExists family errors
	Register(ctx context.Context, p auth.RegisterParams) (models.User, error)

	// Has to return apperrors.ErrInvalidCredentials for any credentials mismatch
	Login(ctx context.Context, email string, password string) (models.Session, error)

	// Has to return apperrors.ErrExternalIdentity if credential not verified
	GoogleSignIn(ctx context.Context, credential string) (models.Session, error)

	// Has to return apperrors.ErrTokenInvalid for bad token
	// and apperrors.ErrRefreshTokenRevoked if token is not known anymore
	Refresh(ctx context.Context, refresh string) (models.Refreshed, error)
	Logout(ctx context.Context, refresh string) error

	Authenticate(ctx context.Context, access string) (uuid.UUID, error)
}

type userService interface {
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, upd models.ProfileUpdate) (models.User, error)
}
