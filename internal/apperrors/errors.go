package apperrors

import (
	"errors"
	"fmt"
)

// Input validation
var (
	ErrFieldsRequired   = errors.New("username, email and password are required")
	ErrPasswordTooShort = errors.New("password is too short")
	ErrEmailInvalid     = errors.New("email is not valid")
	ErrUsernameEmpty    = errors.New("username must not be empty")
)

// Credential store
var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrEmailTaken        = fmt.Errorf("email is already registered: %w", ErrUserAlreadyExists)
	ErrUsernameTaken     = fmt.Errorf("username is already taken: %w", ErrUserAlreadyExists)
	ErrUserNotFound      = errors.New("user not found")

	// Refresh token is not in the user's list of valid tokens
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
)

// Authentication. Callers must not tell these apart in responses except where noted.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrTokenInvalid        = errors.New("token is invalid or expired")
	ErrRefreshTokenRevoked = errors.New("refresh token is revoked")
	ErrExternalIdentity    = errors.New("external identity verification failed")
)

// Configuration. Always a server fault, never an authentication failure.
var (
	ErrConfigMissing         = errors.New("required configuration is missing")
	ErrSigningKeyMissing     = fmt.Errorf("signing secret key: %w", ErrConfigMissing)
	ErrGoogleClientIDMissing = fmt.Errorf("google client id: %w", ErrConfigMissing)
)
