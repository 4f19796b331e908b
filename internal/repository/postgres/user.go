package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/weddingplanner/internal/apperrors"
	"github.com/nkiryanov/weddingplanner/internal/models"
	"github.com/nkiryanov/weddingplanner/internal/repository"
)

// Connection or transaction
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UserRepo struct {
	DB DBTX
}

var _ repository.UserRepo = (*UserRepo)(nil)

const userColumns = `id, created_at, updated_at, username, email, password_hash, avatar, refresh_tokens`

const createUser = `-- name: CreateUser
INSERT INTO users (id, username, email, password_hash, avatar)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, arg repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser, uuid.New(), arg.Username, arg.Email, arg.HashedPassword, arg.Avatar)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			switch pgErr.ConstraintName {
			case "users_email_key":
				return user, apperrors.ErrEmailTaken
			case "users_username_key":
				return user, apperrors.ErrUsernameTaken
			default:
				return user, apperrors.ErrUserAlreadyExists
			}
		}

		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + ` FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	return r.getOne(ctx, getUserByID, id)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT ` + userColumns + ` FROM users
WHERE email = $1
`

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.getOne(ctx, getUserByEmail, email)
}

const getUserByUsername = `-- name: GetUserByUsername
SELECT ` + userColumns + ` FROM users
WHERE username = $1
`

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.getOne(ctx, getUserByUsername, username)
}

const updateProfile = `-- name: UpdateProfile
UPDATE users
SET username = COALESCE($2, username),
    avatar = COALESCE($3, avatar),
    updated_at = now()
WHERE id = $1
RETURNING ` + userColumns

func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, upd models.ProfileUpdate) (models.User, error) {
	rows, _ := r.DB.Query(ctx, updateProfile, id, upd.Username, upd.Avatar)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation:
		return user, apperrors.ErrUsernameTaken
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

const appendRefreshToken = `-- name: AppendRefreshToken
UPDATE users
SET refresh_tokens = array_append(refresh_tokens, $2),
    updated_at = now()
WHERE id = $1
`

func (r *UserRepo) AppendRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	tag, err := r.DB.Exec(ctx, appendRefreshToken, id, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// Row is locked by the first writer; the second one re-checks the WHERE clause
// against the committed list and matches nothing
const rotateRefreshToken = `-- name: RotateRefreshToken
UPDATE users
SET refresh_tokens = array_append(array_remove(refresh_tokens, $2), $3),
    updated_at = now()
WHERE id = $1 AND $2 = ANY(refresh_tokens)
`

func (r *UserRepo) RotateRefreshToken(ctx context.Context, id uuid.UUID, oldToken string, newToken string) error {
	tag, err := r.DB.Exec(ctx, rotateRefreshToken, id, oldToken, newToken)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.tokenMissError(ctx, id)
	}
	return nil
}

const removeRefreshToken = `-- name: RemoveRefreshToken
UPDATE users
SET refresh_tokens = array_remove(refresh_tokens, $2),
    updated_at = now()
WHERE id = $1 AND $2 = ANY(refresh_tokens)
`

func (r *UserRepo) RemoveRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	tag, err := r.DB.Exec(ctx, removeRefreshToken, id, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.tokenMissError(ctx, id)
	}
	return nil
}

const clearRefreshTokens = `-- name: ClearRefreshTokens
UPDATE users
SET refresh_tokens = '{}',
    updated_at = now()
WHERE id = $1
`

func (r *UserRepo) ClearRefreshTokens(ctx context.Context, id uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, clearRefreshTokens, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

const userExists = `-- name: UserExists
SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)
`

// Conditional update matched nothing: tell missing user from missing token
func (r *UserRepo) tokenMissError(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.DB.QueryRow(ctx, userExists, id).Scan(&exists); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return apperrors.ErrUserNotFound
	}
	return apperrors.ErrRefreshTokenNotFound
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (models.User, error) {
	rows, _ := r.DB.Query(ctx, query, arg)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt, &u.Username, &u.Email, &u.HashedPassword, &u.Avatar, &u.RefreshTokens)
	return u, err
}
