package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/weddingplanner/internal/apperrors"
	"github.com/nkiryanov/weddingplanner/internal/handlers/render"
	"github.com/nkiryanov/weddingplanner/internal/handlers/userctx"
)

const bearerScheme = "Bearer"

type authenticator interface {
	Authenticate(ctx context.Context, access string) (uuid.UUID, error)
}

type errorLogger interface {
	Error(msg string, args ...any)
}

// Require valid access token in 'Authorization: Bearer <token>' header
// User id is put to request context, see userctx
func AuthMiddleware(a authenticator, l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				render.ServiceError(w, "Access denied", http.StatusUnauthorized)
				return
			}

			userID, err := a.Authenticate(r.Context(), token)
			switch {
			case errors.Is(err, apperrors.ErrConfigMissing):
				l.Error("can't verify access token", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			case err != nil:
				render.ServiceError(w, "Access denied", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(userctx.New(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
