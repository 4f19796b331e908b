package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nkiryanov/weddingplanner/internal/apperrors"
	"github.com/nkiryanov/weddingplanner/internal/logger"
	"github.com/nkiryanov/weddingplanner/internal/models"
	"github.com/nkiryanov/weddingplanner/internal/repository"
	"github.com/nkiryanov/weddingplanner/internal/service/identity"
)

const (
	minPasswordLength = 6

	// Random bytes in password of users created by external sign-in
	placeholderPasswordBytes = 32
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type TokenManager interface {
	GeneratePair(userID uuid.UUID) (models.TokenPair, error)
	ParseAccess(access string) (uuid.UUID, error)
	ParseRefresh(refresh string) (uuid.UUID, error)
}

// Verifies credential issued by external identity provider
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (identity.Identity, error)
}

type Config struct {
	// Hasher to use during registration and login. BcryptHasher if not set
	Hasher PasswordHasher

	// Google sign-in fails with configuration error if not set
	Verifier IdentityVerifier

	Logger logger.Logger
}

type RegisterParams struct {
	Username string
	Email    string
	Password string
}

type AuthService struct {
	hasher   PasswordHasher
	verifier IdentityVerifier
	log      logger.Logger

	tokens TokenManager
	users  repository.UserRepo

	validate *validator.Validate
}

func NewService(cfg Config, tokens TokenManager, users repository.UserRepo) (*AuthService, error) {
	if tokens == nil || users == nil {
		return nil, errors.New("token manager and user repo must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &AuthService{
		hasher:   hasher,
		verifier: cfg.Verifier,
		log:      log,
		tokens:   tokens,
		users:    users,
		validate: validator.New(),
	}, nil
}

// Create new user. It does not log the user in
func (s *AuthService) Register(ctx context.Context, p RegisterParams) (models.User, error) {
	var user models.User

	username := strings.TrimSpace(p.Username)
	email := normalizeEmail(p.Email)
	if username == "" || email == "" || p.Password == "" {
		return user, apperrors.ErrFieldsRequired
	}

	// Check order matters: clients see the first failed rule only
	if err := s.ensureFree(ctx, s.users.GetUserByEmail, email, apperrors.ErrEmailTaken); err != nil {
		return user, err
	}
	if err := s.ensureFree(ctx, s.users.GetUserByUsername, username, apperrors.ErrUsernameTaken); err != nil {
		return user, err
	}
	if utf8.RuneCountInString(p.Password) < minPasswordLength {
		return user, apperrors.ErrPasswordTooShort
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return user, apperrors.ErrEmailInvalid
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, error=%w", err)
	}

	// Store unique constraints still guard against concurrent registrations
	return s.users.CreateUser(ctx, repository.CreateUserParams{
		Username:       username,
		Email:          email,
		HashedPassword: hash,
	})
}

// Unknown email and wrong password are reported the same way
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.Session, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.Session{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.Session{}, fmt.Errorf("can't get user. Err: %w", err)
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.Session{}, apperrors.ErrInvalidCredentials
	}

	return s.startSession(ctx, user)
}

// Log in with Google ID token; unknown emails get a new account
func (s *AuthService) GoogleSignIn(ctx context.Context, credential string) (models.Session, error) {
	if s.verifier == nil {
		return models.Session{}, apperrors.ErrGoogleClientIDMissing
	}

	id, err := s.verifier.Verify(ctx, credential)
	switch {
	case errors.Is(err, apperrors.ErrConfigMissing), errors.Is(err, apperrors.ErrExternalIdentity):
		return models.Session{}, err
	case err != nil:
		return models.Session{}, fmt.Errorf("%w: %w", apperrors.ErrExternalIdentity, err)
	}

	user, err := s.users.GetUserByEmail(ctx, id.Email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		user, err = s.provision(ctx, id)
		if err != nil {
			return models.Session{}, err
		}
	case err != nil:
		return models.Session{}, fmt.Errorf("can't get user. Err: %w", err)
	}

	return s.startSession(ctx, user)
}

// Exchange refresh token for a new pair
// Presenting a token that is valid but no longer listed revokes every session of the user
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.Refreshed, error) {
	userID, err := s.tokens.ParseRefresh(refresh)
	if err != nil {
		return models.Refreshed{}, err
	}

	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return models.Refreshed{}, err
	}

	pair, err := s.tokens.GeneratePair(userID)
	if err != nil {
		return models.Refreshed{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	err = s.users.RotateRefreshToken(ctx, userID, refresh, pair.Refresh.Value)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return models.Refreshed{}, s.revokeAll(ctx, userID)
	case err != nil:
		return models.Refreshed{}, fmt.Errorf("can't rotate refresh token. Err: %w", err)
	}

	return models.Refreshed{Pair: pair, UserID: userID}, nil
}

// End session of the refresh token. Same reuse rules as for Refresh
func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	userID, err := s.tokens.ParseRefresh(refresh)
	if err != nil {
		return err
	}

	err = s.users.RemoveRefreshToken(ctx, userID, refresh)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return s.revokeAll(ctx, userID)
	case err != nil:
		return fmt.Errorf("can't remove refresh token. Err: %w", err)
	}

	return nil
}

// Verify access token and return user id it was issued for. No store lookup
func (s *AuthService) Authenticate(ctx context.Context, access string) (uuid.UUID, error) {
	return s.tokens.ParseAccess(access)
}

func (s *AuthService) startSession(ctx context.Context, user models.User) (models.Session, error) {
	pair, err := s.tokens.GeneratePair(user.ID)
	if err != nil {
		return models.Session{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	if err := s.users.AppendRefreshToken(ctx, user.ID, pair.Refresh.Value); err != nil {
		return models.Session{}, fmt.Errorf("can't save refresh token. Err: %w", err)
	}

	return models.Session{Pair: pair, User: user}, nil
}

func (s *AuthService) revokeAll(ctx context.Context, userID uuid.UUID) error {
	s.log.Warn("refresh token reuse, revoking all sessions", "user_id", userID)

	if err := s.users.ClearRefreshTokens(ctx, userID); err != nil {
		s.log.Error("can't revoke sessions", "user_id", userID, "error", err)
	}
	return apperrors.ErrRefreshTokenRevoked
}

func (s *AuthService) provision(ctx context.Context, id identity.Identity) (models.User, error) {
	b := make([]byte, placeholderPasswordBytes)
	if _, err := rand.Read(b); err != nil {
		return models.User{}, fmt.Errorf("can't generate password. Err: %w", err)
	}
	hash, err := s.hasher.Hash(hex.EncodeToString(b))
	if err != nil {
		return models.User{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	arg := repository.CreateUserParams{
		Username:       externalUsername(id),
		Email:          id.Email,
		HashedPassword: hash,
		Avatar:         id.Picture,
	}

	user, err := s.users.CreateUser(ctx, arg)
	if errors.Is(err, apperrors.ErrUsernameTaken) {
		arg.Username = arg.Username + "-" + uuid.NewString()[:8]
		user, err = s.users.CreateUser(ctx, arg)
	}

	switch {
	case errors.Is(err, apperrors.ErrEmailTaken):
		// Concurrent sign-in with the same account won the insert
		return s.users.GetUserByEmail(ctx, id.Email)
	case err != nil:
		return models.User{}, fmt.Errorf("can't create user. Err: %w", err)
	}

	s.log.Info("user created from external identity", "user_id", user.ID)
	return user, nil
}

// Return conflict if lookup finds a user
func (s *AuthService) ensureFree(
	ctx context.Context,
	lookup func(context.Context, string) (models.User, error),
	value string,
	conflict error,
) error {
	_, err := lookup(ctx, value)
	switch {
	case err == nil:
		return conflict
	case errors.Is(err, apperrors.ErrUserNotFound):
		return nil
	default:
		return fmt.Errorf("can't check user. Err: %w", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func externalUsername(id identity.Identity) string {
	if id.Name != "" {
		return id.Name
	}

	local, _, _ := strings.Cut(id.Email, "@")
	return local
}
