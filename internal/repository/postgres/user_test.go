package postgres

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/weddingplanner/internal/apperrors"
	"github.com/nkiryanov/weddingplanner/internal/models"
	"github.com/nkiryanov/weddingplanner/internal/repository"
	"github.com/nkiryanov/weddingplanner/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

func Test_UserRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	params := repository.CreateUserParams{
		Username:       "alice",
		Email:          "a@x.com",
		HashedPassword: "hashedpassword123",
	}

	withRepo := func(t *testing.T, fn func(r *UserRepo)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			fn(&UserRepo{DB: tx})
		})
	}

	t.Run("create user ok", func(t *testing.T) {
		withRepo(t, func(r *UserRepo) {
			user, err := r.CreateUser(t.Context(), params)

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, user.ID, "ID should be generated")
			assert.Equal(t, "alice", user.Username)
			assert.Equal(t, "a@x.com", user.Email)
			assert.Equal(t, "hashedpassword123", user.HashedPassword)
			assert.Empty(t, user.RefreshTokens, "new user has no sessions")
			assert.WithinDuration(t, time.Now(), user.CreatedAt, time.Minute, "CreatedAt should be recent")
		})
	})

	t.Run("create user duplicate fails", func(t *testing.T) {
		tests := []struct {
			name        string
			second      repository.CreateUserParams
			expectedErr error
		}{
			{
				name:        "same email",
				second:      repository.CreateUserParams{Username: "bob", Email: "a@x.com", HashedPassword: "h"},
				expectedErr: apperrors.ErrEmailTaken,
			},
			{
				name:        "same username",
				second:      repository.CreateUserParams{Username: "alice", Email: "b@x.com", HashedPassword: "h"},
				expectedErr: apperrors.ErrUsernameTaken,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				withRepo(t, func(r *UserRepo) {
					_, err := r.CreateUser(t.Context(), params)
					require.NoError(t, err)

					_, err = r.CreateUser(t.Context(), tt.second)

					require.ErrorIs(t, err, tt.expectedErr)
					require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
				})
			})
		}
	})

	t.Run("get user", func(t *testing.T) {
		withRepo(t, func(r *UserRepo) {
			created, err := r.CreateUser(t.Context(), params)
			require.NoError(t, err)

			byID, err := r.GetUserByID(t.Context(), created.ID)
			require.NoError(t, err)
			byEmail, err := r.GetUserByEmail(t.Context(), "a@x.com")
			require.NoError(t, err)
			byUsername, err := r.GetUserByUsername(t.Context(), "alice")
			require.NoError(t, err)

			for _, got := range []models.User{byID, byEmail, byUsername} {
				assert.Equal(t, created.ID, got.ID)
				assert.Equal(t, created.Email, got.Email)
				assert.Equal(t, created.HashedPassword, got.HashedPassword)
			}
		})
	})

	t.Run("get user not found", func(t *testing.T) {
		withRepo(t, func(r *UserRepo) {
			_, err := r.GetUserByID(t.Context(), uuid.New())
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)

			_, err = r.GetUserByEmail(t.Context(), "nobody@x.com")
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)

			_, err = r.GetUserByUsername(t.Context(), "nobody")
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("update profile", func(t *testing.T) {
		withRepo(t, func(r *UserRepo) {
			created, err := r.CreateUser(t.Context(), params)
			require.NoError(t, err)

			got, err := r.UpdateProfile(t.Context(), created.ID, models.ProfileUpdate{Avatar: ptr("https://cdn/a.png")})
			require.NoError(t, err)
			assert.Equal(t, "alice", got.Username, "username must be kept when not set")
			assert.Equal(t, "https://cdn/a.png", got.Avatar)

			got, err = r.UpdateProfile(t.Context(), created.ID, models.ProfileUpdate{Username: ptr("alice2")})
			require.NoError(t, err)
			assert.Equal(t, "alice2", got.Username)
			assert.Equal(t, "https://cdn/a.png", got.Avatar, "avatar must be kept when not set")
		})
	})

	t.Run("update profile errors", func(t *testing.T) {
		withRepo(t, func(r *UserRepo) {
			_, err := r.CreateUser(t.Context(), params)
			require.NoError(t, err)
			bob, err := r.CreateUser(t.Context(), repository.CreateUserParams{Username: "bob", Email: "b@x.com", HashedPassword: "h"})
			require.NoError(t, err)

			_, err = r.UpdateProfile(t.Context(), uuid.New(), models.ProfileUpdate{Username: ptr("x")})
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)

			_, err = r.UpdateProfile(t.Context(), bob.ID, models.ProfileUpdate{Username: ptr("alice")})
			require.ErrorIs(t, err, apperrors.ErrUsernameTaken)
		})
	})

	t.Run("refresh tokens list", func(t *testing.T) {
		withRepo(t, func(r *UserRepo) {
			user, err := r.CreateUser(t.Context(), params)
			require.NoError(t, err)

			require.NoError(t, r.AppendRefreshToken(t.Context(), user.ID, "t1"))
			require.NoError(t, r.AppendRefreshToken(t.Context(), user.ID, "t2"))
			require.NoError(t, r.RotateRefreshToken(t.Context(), user.ID, "t1", "t3"))

			got, err := r.GetUserByID(t.Context(), user.ID)
			require.NoError(t, err)
			require.Equal(t, []string{"t2", "t3"}, got.RefreshTokens, "rotated token goes to the end")

			require.NoError(t, r.RemoveRefreshToken(t.Context(), user.ID, "t2"))
			got, err = r.GetUserByID(t.Context(), user.ID)
			require.NoError(t, err)
			require.Equal(t, []string{"t3"}, got.RefreshTokens)

			require.NoError(t, r.ClearRefreshTokens(t.Context(), user.ID))
			got, err = r.GetUserByID(t.Context(), user.ID)
			require.NoError(t, err)
			require.Empty(t, got.RefreshTokens)
		})
	})

	t.Run("refresh token not in list", func(t *testing.T) {
		withRepo(t, func(r *UserRepo) {
			user, err := r.CreateUser(t.Context(), params)
			require.NoError(t, err)
			require.NoError(t, r.AppendRefreshToken(t.Context(), user.ID, "t1"))

			err = r.RotateRefreshToken(t.Context(), user.ID, "unknown", "t2")
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)

			err = r.RemoveRefreshToken(t.Context(), user.ID, "unknown")
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)

			got, err := r.GetUserByID(t.Context(), user.ID)
			require.NoError(t, err)
			require.Equal(t, []string{"t1"}, got.RefreshTokens, "failed conditional updates must not touch the list")
		})
	})

	t.Run("refresh tokens of missing user", func(t *testing.T) {
		withRepo(t, func(r *UserRepo) {
			id := uuid.New()

			require.ErrorIs(t, r.AppendRefreshToken(t.Context(), id, "t1"), apperrors.ErrUserNotFound)
			require.ErrorIs(t, r.RotateRefreshToken(t.Context(), id, "t1", "t2"), apperrors.ErrUserNotFound)
			require.ErrorIs(t, r.RemoveRefreshToken(t.Context(), id, "t1"), apperrors.ErrUserNotFound)
			require.ErrorIs(t, r.ClearRefreshTokens(t.Context(), id), apperrors.ErrUserNotFound)
		})
	})
}

// Runs on the pool: every goroutine needs its own connection to race for the row
func Test_UserRepo_ConcurrentRotate(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	r := &UserRepo{DB: pg.Pool}
	user, err := r.CreateUser(t.Context(), repository.CreateUserParams{
		Username:       "racer",
		Email:          "racer@x.com",
		HashedPassword: "h",
	})
	require.NoError(t, err)
	require.NoError(t, r.AppendRefreshToken(t.Context(), user.ID, "shared"))

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = r.RotateRefreshToken(t.Context(), user.ID, "shared", uuid.NewString())
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		}
	}
	require.Equal(t, 1, succeeded, "exactly one rotation must win")

	got, err := r.GetUserByID(t.Context(), user.ID)
	require.NoError(t, err)
	require.Len(t, got.RefreshTokens, 1)
	require.NotEqual(t, "shared", got.RefreshTokens[0])
}
