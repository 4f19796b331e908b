package models

import (
	"time"

	"github.com/google/uuid"
)

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by TokenManager
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Result of password or external identity login
type Session struct {
	Pair TokenPair
	User User
}

// Result of refresh token rotation
type Refreshed struct {
	Pair   TokenPair
	UserID uuid.UUID
}
