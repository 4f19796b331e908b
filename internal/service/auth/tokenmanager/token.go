package tokenmanager

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/weddingplanner/internal/apperrors"
	"github.com/nkiryanov/weddingplanner/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 7 * 24 * time.Hour

	// Nonce is in [0, nonceLimit)
	nonceLimit = 1_000_000
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
	Nonce  int64     `json:"nonce"`
	Type   string    `json:"type"`
}

// Token manager with sensible default
type Config struct {
	// Secret key to sign access tokens
	// Required to be set
	SecretKey string

	// Secret key to sign refresh tokens
	// SecretKey is used if not set
	RefreshSecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenManager struct {
	accessKey  string
	refreshKey string

	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("token manager error: %w", apperrors.ErrSigningKeyMissing)
	}
	if cfg.RefreshSecretKey == "" {
		cfg.RefreshSecretKey = cfg.SecretKey
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("token manager error: unsupported signing method %q", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("token manager error: token lifetimes must be positive")
	}

	return &TokenManager{
		accessKey:  cfg.SecretKey,
		refreshKey: cfg.RefreshSecretKey,
		alg:        alg,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

// Issue access and refresh tokens for the user
// Every call gives new tokens even within the same second: jti and nonce are random
func (m *TokenManager) GeneratePair(userID uuid.UUID) (models.TokenPair, error) {
	var pair models.TokenPair

	if m.accessKey == "" || m.refreshKey == "" {
		return pair, apperrors.ErrSigningKeyMissing
	}

	now := time.Now().Truncate(time.Second)

	access, err := m.sign(TypeAccess, m.accessKey, userID, now, m.accessTTL)
	if err != nil {
		return pair, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	refresh, err := m.sign(TypeRefresh, m.refreshKey, userID, now, m.refreshTTL)
	if err != nil {
		return pair, fmt.Errorf("error while signing refresh token. Err: %w", err)
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Parse and validate access token
func (m *TokenManager) ParseAccess(access string) (uuid.UUID, error) {
	return m.parse(access, TypeAccess, m.accessKey)
}

// Parse and validate refresh token. It is not checked against user's token list here
func (m *TokenManager) ParseRefresh(refresh string) (uuid.UUID, error) {
	return m.parse(refresh, TypeRefresh, m.refreshKey)
}

func (m *TokenManager) sign(typ string, key string, userID uuid.UUID, now time.Time, ttl time.Duration) (models.IssuedToken, error) {
	nonce, err := rand.Int(rand.Reader, big.NewInt(nonceLimit))
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while generating nonce. Err: %w", err)
	}

	expiresAt := now.Add(ttl)
	token := jwt.NewWithClaims(
		m.alg,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: userID,
			Nonce:  nonce.Int64(),
			Type:   typ,
		},
	)

	value, err := token.SignedString([]byte(key))
	if err != nil {
		return models.IssuedToken{}, err
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, nil
}

func (m *TokenManager) parse(value string, typ string, key string) (uuid.UUID, error) {
	if key == "" {
		return uuid.Nil, apperrors.ErrSigningKeyMissing
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		value,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(key), nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
	)

	switch {
	case err != nil:
		return uuid.Nil, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	case claims.Type != typ:
		return uuid.Nil, fmt.Errorf("%w: want %s token, got %q", apperrors.ErrTokenInvalid, typ, claims.Type)
	case claims.UserID == uuid.Nil:
		return uuid.Nil, fmt.Errorf("%w: no user id", apperrors.ErrTokenInvalid)
	default:
		return claims.UserID, nil
	}
}
