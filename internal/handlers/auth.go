package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/weddingplanner/internal/apperrors"
	"github.com/nkiryanov/weddingplanner/internal/handlers/render"
	"github.com/nkiryanov/weddingplanner/internal/logger"
	"github.com/nkiryanov/weddingplanner/internal/models"
	"github.com/nkiryanov/weddingplanner/internal/service/auth"
)

type sessionResponse struct {
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
	User         models.UserSummary `json:"user"`
}

func newSessionResponse(s models.Session) sessionResponse {
	return sessionResponse{
		AccessToken:  s.Pair.Access.Value,
		RefreshToken: s.Pair.Refresh.Value,
		User:         s.User.Summary(),
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func handleRegister(s authService, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required"`
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	type response struct {
		Message string             `json:"message"`
		User    models.UserSummary `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := s.Register(r.Context(), auth.RegisterParams{
			Username: data.Username,
			Email:    data.Email,
			Password: data.Password,
		})

		switch {
		case err == nil:
			render.JSON(w, response{Message: "User registered", User: user.Summary()})
		case errors.Is(err, apperrors.ErrFieldsRequired):
			render.ServiceError(w, "Username, email and password are required", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrEmailTaken):
			render.ServiceError(w, "Email is already registered", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUsernameTaken):
			render.ServiceError(w, "Username is already taken", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrPasswordTooShort):
			render.ServiceError(w, "Password must be at least 6 characters", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrEmailInvalid):
			render.ServiceError(w, "Email is not valid", http.StatusBadRequest)
		default:
			internalError(w, l, "register failed", err)
		}
	})
}

func handleLogin(s authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		session, err := s.Login(r.Context(), data.Email, data.Password)

		switch {
		case err == nil:
			render.JSON(w, newSessionResponse(session))
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid credentials", http.StatusBadRequest)
		default:
			internalError(w, l, "login failed", err)
		}
	})
}

func handleGoogleSignIn(s authService, l logger.Logger) http.Handler {
	type request struct {
		Credential string `json:"credential" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		session, err := s.GoogleSignIn(r.Context(), data.Credential)

		switch {
		case err == nil:
			render.JSON(w, newSessionResponse(session))
		case errors.Is(err, apperrors.ErrExternalIdentity):
			l.Info("google sign-in rejected", "error", err)
			render.ServiceError(w, "Google verification failed", http.StatusBadRequest)
		default:
			internalError(w, l, "google sign-in failed", err)
		}
	})
}

func handleRefresh(s authService, l logger.Logger) http.Handler {
	type response struct {
		AccessToken  string    `json:"accessToken"`
		RefreshToken string    `json:"refreshToken"`
		UserID       uuid.UUID `json:"userId"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[refreshRequest](w, r)
		if err != nil {
			return
		}

		refreshed, err := s.Refresh(r.Context(), data.RefreshToken)

		switch {
		case err == nil:
			render.JSON(w, response{
				AccessToken:  refreshed.Pair.Access.Value,
				RefreshToken: refreshed.Pair.Refresh.Value,
				UserID:       refreshed.UserID,
			})
		case errors.Is(err, apperrors.ErrTokenInvalid):
			render.ServiceError(w, "Invalid or expired refresh token", http.StatusForbidden)
		case errors.Is(err, apperrors.ErrRefreshTokenRevoked):
			render.ServiceError(w, "Invalid refresh token", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			internalError(w, l, "refresh failed", err)
		}
	})
}

func handleLogout(s authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[refreshRequest](w, r)
		if err != nil {
			return
		}

		err = s.Logout(r.Context(), data.RefreshToken)

		switch {
		case err == nil:
			render.Message(w, "Logged Out")
		case errors.Is(err, apperrors.ErrTokenInvalid),
			errors.Is(err, apperrors.ErrRefreshTokenRevoked),
			errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "Invalid refresh token", http.StatusBadRequest)
		default:
			internalError(w, l, "logout failed", err)
		}
	})
}

// Log error and render generic 500. Configuration errors end up here too
func internalError(w http.ResponseWriter, l logger.Logger, msg string, err error) {
	l.Error(msg, "error", err)
	render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
}
