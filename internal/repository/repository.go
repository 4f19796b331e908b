package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/weddingplanner/internal/models"
)

type CreateUserParams struct {
	Username       string
	Email          string
	HashedPassword string
	Avatar         string
}

// User repository interface
// Implementations must keep every refresh token operation atomic on the store side
type UserRepo interface {
	// Create user
	// If email is taken must return apperrors.ErrEmailTaken
	// If username is taken must return apperrors.ErrUsernameTaken
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Get user by it's id, email or username
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)

	// Update username and/or avatar. Nil fields are not touched
	UpdateProfile(ctx context.Context, id uuid.UUID, upd models.ProfileUpdate) (models.User, error)

	// Add token to the end of user's refresh token list
	AppendRefreshToken(ctx context.Context, id uuid.UUID, token string) error

	// Replace oldToken with newToken only if oldToken is in the list
	// If it is not: the list is left as is and apperrors.ErrRefreshTokenNotFound returned
	RotateRefreshToken(ctx context.Context, id uuid.UUID, oldToken string, newToken string) error

	// Remove token only if it is in the list, otherwise apperrors.ErrRefreshTokenNotFound
	RemoveRefreshToken(ctx context.Context, id uuid.UUID, token string) error

	// Drop all user's refresh tokens
	ClearRefreshTokens(ctx context.Context, id uuid.UUID) error
}
