package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/weddingplanner/internal/apperrors"
	"github.com/nkiryanov/weddingplanner/internal/handlers/render"
	"github.com/nkiryanov/weddingplanner/internal/handlers/userctx"
	"github.com/nkiryanov/weddingplanner/internal/logger"
	"github.com/nkiryanov/weddingplanner/internal/models"
)

func handleGetMe(s userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userctx.FromContext(r.Context())
		if !ok {
			internalError(w, l, "no user in context", errors.New("auth middleware not applied"))
			return
		}

		user, err := s.GetUser(r.Context(), userID)

		switch {
		case err == nil:
			render.JSON(w, user.Summary())
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			internalError(w, l, "get user failed", err)
		}
	})
}

func handleUpdateMe(s userService, l logger.Logger) http.Handler {
	type request struct {
		Username *string `json:"username" validate:"omitempty,max=50"`
		Avatar   *string `json:"avatar" validate:"omitempty,max=2048"`
	}
	type response struct {
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userctx.FromContext(r.Context())
		if !ok {
			internalError(w, l, "no user in context", errors.New("auth middleware not applied"))
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := s.UpdateProfile(r.Context(), userID, models.ProfileUpdate{
			Username: data.Username,
			Avatar:   data.Avatar,
		})

		switch {
		case err == nil:
			render.JSON(w, response{Username: user.Username, Avatar: user.Avatar})
		case errors.Is(err, apperrors.ErrUsernameEmpty):
			render.ServiceError(w, "Username must not be empty", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUsernameTaken):
			render.ServiceError(w, "Username is already taken", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			internalError(w, l, "update user failed", err)
		}
	})
}
