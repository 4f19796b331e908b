package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Username       string
	Email          string
	HashedPassword string
	Avatar         string

	// Refresh tokens that are still allowed to be rotated, oldest first
	RefreshTokens []string
}

// Public part of the user that is safe to return to clients
type UserSummary struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Avatar   string    `json:"avatar"`
}

func (u User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Avatar:   u.Avatar,
	}
}

// Profile fields to change. Nil means keep the current value
type ProfileUpdate struct {
	Username *string
	Avatar   *string
}
