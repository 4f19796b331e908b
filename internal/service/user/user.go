package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/weddingplanner/internal/apperrors"
	"github.com/nkiryanov/weddingplanner/internal/models"
	"github.com/nkiryanov/weddingplanner/internal/repository"
)

type UserService struct {
	userRepo repository.UserRepo
}

func NewService(userRepo repository.UserRepo) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	user, err := s.userRepo.GetUserByID(ctx, id)
	if err != nil {
		return user, fmt.Errorf("can't get user. Err: %w", err)
	}
	return user, nil
}

// Change username and/or avatar; nil fields are left as is
func (s *UserService) UpdateProfile(ctx context.Context, id uuid.UUID, upd models.ProfileUpdate) (models.User, error) {
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if username == "" {
			return models.User{}, apperrors.ErrUsernameEmpty
		}
		upd.Username = &username
	}

	user, err := s.userRepo.UpdateProfile(ctx, id, upd)
	if err != nil {
		return user, fmt.Errorf("can't update profile. Err: %w", err)
	}
	return user, nil
}
