package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/weddingplanner/internal/apperrors"
	"github.com/nkiryanov/weddingplanner/internal/logger"
	"github.com/nkiryanov/weddingplanner/internal/repository/postgres"
	"github.com/nkiryanov/weddingplanner/internal/service/auth"
	"github.com/nkiryanov/weddingplanner/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/weddingplanner/internal/service/identity"
	"github.com/nkiryanov/weddingplanner/internal/service/user"
	"github.com/nkiryanov/weddingplanner/internal/testutil"
)

type verifierFunc func(ctx context.Context, credential string) (identity.Identity, error)

func (f verifierFunc) Verify(ctx context.Context, credential string) (identity.Identity, error) {
	return f(ctx, credential)
}

type apiClient struct {
	t   *testing.T
	url string
}

// Send request and return status code and response body
func (c apiClient) do(method string, path string, bearer string, body string) (int, string) {
	c.t.Helper()

	req, err := http.NewRequest(method, c.url+path, strings.NewReader(body))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, string(b)
}

func (c apiClient) post(path string, body string) (int, string) {
	c.t.Helper()
	return c.do(http.MethodPost, path, "", body)
}

func decode(t *testing.T, body string) map[string]any {
	t.Helper()

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &m), "body should be json object: %s", body)
	return m
}

func Test_Router(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	google := verifierFunc(func(ctx context.Context, credential string) (identity.Identity, error) {
		if credential != "good-google-credential" {
			return identity.Identity{}, apperrors.ErrExternalIdentity
		}
		return identity.Identity{Email: "grace@x.com", EmailVerified: true, Name: "Grace", Picture: "https://lh3/g.png"}, nil
	})

	// Run http server with production services inside db transaction
	withServer := func(t *testing.T, fn func(c apiClient)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := &postgres.UserRepo{DB: tx}

			tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"})
			require.NoError(t, err)

			authService, err := auth.NewService(auth.Config{
				Hasher:   auth.BcryptHasher{Cost: bcrypt.MinCost},
				Verifier: google,
			}, tokens, repo)
			require.NoError(t, err)

			h := NewRouter(RouterConfig{AuthRateLimit: -1}, authService, user.NewService(repo), logger.NewNoOpLogger())
			srv := httptest.NewServer(h)
			defer srv.Close()

			fn(apiClient{t: t, url: srv.URL})
		})
	}

	register := func(c apiClient) {
		code, body := c.post("/api/auth/register", `{"username": "alice", "email": "a@x.com", "password": "secret1"}`)
		require.Equalf(t, http.StatusOK, code, "register should be ok. Body: %s", body)
	}

	login := func(c apiClient) (access string, refresh string) {
		code, body := c.post("/api/auth/login", `{"email": "a@x.com", "password": "secret1"}`)
		require.Equalf(t, http.StatusOK, code, "login should be ok. Body: %s", body)

		m := decode(t, body)
		return m["accessToken"].(string), m["refreshToken"].(string)
	}

	t.Run("register ok", func(t *testing.T) {
		withServer(t, func(c apiClient) {
			code, body := c.post("/api/auth/register", `{"username": "alice", "email": "a@x.com", "password": "secret1"}`)

			require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)
			m := decode(t, body)
			require.Equal(t, "User registered", m["message"])
			u := m["user"].(map[string]any)
			assert.Equal(t, "alice", u["username"])
			assert.Equal(t, "a@x.com", u["email"])
			assert.NotEmpty(t, u["id"])
			assert.NotContains(t, body, "password", "secrets must never be returned")
			assert.NotContains(t, body, "refresh", "register does not log in")
		})
	})

	t.Run("register fails", func(t *testing.T) {
		tests := []struct {
			name    string
			body    string
			message string
		}{
			{
				name:    "email taken",
				body:    `{"username": "bob", "email": "a@x.com", "password": "secret1"}`,
				message: "Email is already registered",
			},
			{
				name:    "username taken",
				body:    `{"username": "alice", "email": "b@x.com", "password": "secret1"}`,
				message: "Username is already taken",
			},
			{
				name:    "password of five letters",
				body:    `{"username": "bob", "email": "b@x.com", "password": "12345"}`,
				message: "Password must be at least 6 characters",
			},
			{
				name:    "bad email",
				body:    `{"username": "bob", "email": "bob", "password": "123456"}`,
				message: "Email is not valid",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				withServer(t, func(c apiClient) {
					register(c)

					code, body := c.post("/api/auth/register", tt.body)

					require.Equalf(t, http.StatusBadRequest, code, "not expected code. Body: %s", body)
					require.JSONEq(t, `{"error": "service_error", "message": "`+tt.message+`"}`, body)
				})
			})
		}

		t.Run("missing fields", func(t *testing.T) {
			withServer(t, func(c apiClient) {
				code, body := c.post("/api/auth/register", `{"username": "bob"}`)

				require.Equal(t, http.StatusBadRequest, code)
				require.JSONEq(t, `{
					"error": "validation_failed",
					"message": "Request validation failed",
					"fields": {
						"email": "This field is required",
						"password": "This field is required"
					}
				}`, body)
			})
		})

		t.Run("password of six letters ok", func(t *testing.T) {
			withServer(t, func(c apiClient) {
				code, body := c.post("/api/auth/register", `{"username": "bob", "email": "b@x.com", "password": "123456"}`)

				require.Equalf(t, http.StatusOK, code, "Body: %s", body)
			})
		})
	})

	t.Run("login", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			withServer(t, func(c apiClient) {
				register(c)

				code, body := c.post("/api/auth/login", `{"email": "a@x.com", "password": "secret1"}`)

				require.Equalf(t, http.StatusOK, code, "Body: %s", body)
				m := decode(t, body)
				assert.NotEmpty(t, m["accessToken"])
				assert.NotEmpty(t, m["refreshToken"])
				assert.Equal(t, "alice", m["user"].(map[string]any)["username"])
			})
		})

		for _, body := range []string{
			`{"email": "a@x.com", "password": "wrong-password"}`,
			`{"email": "nobody@x.com", "password": "secret1"}`,
		} {
			t.Run("invalid credentials", func(t *testing.T) {
				withServer(t, func(c apiClient) {
					register(c)

					code, got := c.post("/api/auth/login", body)

					require.Equal(t, http.StatusBadRequest, code)
					require.JSONEq(t, `{"error": "service_error", "message": "Invalid credentials"}`, got, "same answer for unknown email and wrong password")
				})
			})
		}
	})

	t.Run("google sign-in", func(t *testing.T) {
		withServer(t, func(c apiClient) {
			code, body := c.post("/api/auth/google", `{"credential": "good-google-credential"}`)
			require.Equalf(t, http.StatusOK, code, "Body: %s", body)
			m := decode(t, body)
			assert.NotEmpty(t, m["accessToken"])
			assert.Equal(t, "Grace", m["user"].(map[string]any)["username"])
			assert.Equal(t, "https://lh3/g.png", m["user"].(map[string]any)["avatar"])

			code, body = c.post("/api/auth/google", `{"credential": "forged"}`)
			require.Equal(t, http.StatusBadRequest, code)
			require.JSONEq(t, `{"error": "service_error", "message": "Google verification failed"}`, body)
		})
	})

	// register → login → logout → refresh with the same token is rejected
	t.Run("logout scenario", func(t *testing.T) {
		withServer(t, func(c apiClient) {
			register(c)
			_, refresh := login(c)

			code, body := c.post("/api/auth/logout", `{"refreshToken": "`+refresh+`"}`)
			require.Equalf(t, http.StatusOK, code, "Body: %s", body)
			require.JSONEq(t, `{"message": "Logged Out"}`, body)

			code, body = c.post("/api/auth/refresh", `{"refreshToken": "`+refresh+`"}`)
			require.Equal(t, http.StatusBadRequest, code)
			require.JSONEq(t, `{"error": "service_error", "message": "Invalid refresh token"}`, body)
		})
	})

	// refresh(A) → B; refresh(A) again fails and kills B too
	t.Run("refresh reuse scenario", func(t *testing.T) {
		withServer(t, func(c apiClient) {
			register(c)
			_, tokenA := login(c)

			code, body := c.post("/api/auth/refresh", `{"refreshToken": "`+tokenA+`"}`)
			require.Equalf(t, http.StatusOK, code, "Body: %s", body)
			m := decode(t, body)
			tokenB := m["refreshToken"].(string)
			assert.NotEmpty(t, m["accessToken"])
			assert.NotEmpty(t, m["userId"])
			assert.NotEqual(t, tokenA, tokenB)

			code, _ = c.post("/api/auth/refresh", `{"refreshToken": "`+tokenA+`"}`)
			require.Equal(t, http.StatusBadRequest, code, "rotated token can't be used again")

			code, _ = c.post("/api/auth/refresh", `{"refreshToken": "`+tokenB+`"}`)
			require.Equal(t, http.StatusBadRequest, code, "reuse revoked every session")

			_, _ = login(c)
		})
	})

	t.Run("refresh fails", func(t *testing.T) {
		withServer(t, func(c apiClient) {
			register(c)
			access, _ := login(c)

			code, body := c.post("/api/auth/refresh", `{"refreshToken": "garbage"}`)
			require.Equal(t, http.StatusForbidden, code)
			require.JSONEq(t, `{"error": "service_error", "message": "Invalid or expired refresh token"}`, body)

			code, _ = c.post("/api/auth/refresh", `{"refreshToken": "`+access+`"}`)
			require.Equal(t, http.StatusForbidden, code, "access token is not a refresh token")

			code, body = c.post("/api/auth/refresh", `{}`)
			require.Equal(t, http.StatusBadRequest, code, "missing token is input error")
			require.Contains(t, body, "validation_failed")
		})
	})

	t.Run("logout fails", func(t *testing.T) {
		withServer(t, func(c apiClient) {
			code, _ := c.post("/api/auth/logout", `{"refreshToken": "garbage"}`)
			require.Equal(t, http.StatusBadRequest, code)

			code, _ = c.post("/api/auth/logout", `{}`)
			require.Equal(t, http.StatusBadRequest, code)
		})
	})

	t.Run("users me", func(t *testing.T) {
		withServer(t, func(c apiClient) {
			register(c)
			access, refresh := login(c)

			code, body := c.do(http.MethodGet, "/api/users/me", access, "")
			require.Equalf(t, http.StatusOK, code, "Body: %s", body)
			assert.Equal(t, "alice", decode(t, body)["username"])

			code, body = c.do(http.MethodPatch, "/api/users/me", access, `{"avatar": "https://cdn/a.png"}`)
			require.Equalf(t, http.StatusOK, code, "Body: %s", body)
			require.JSONEq(t, `{"username": "alice", "avatar": "https://cdn/a.png"}`, body)

			code, body = c.do(http.MethodPatch, "/api/users/me", access, `{"username": " "}`)
			require.Equal(t, http.StatusBadRequest, code)
			require.JSONEq(t, `{"error": "service_error", "message": "Username must not be empty"}`, body)

			code, body = c.do(http.MethodGet, "/api/users/me", refresh, "")
			require.Equal(t, http.StatusUnauthorized, code, "refresh token can't be used as access")
			require.JSONEq(t, `{"error": "service_error", "message": "Access denied"}`, body)

			code, _ = c.do(http.MethodGet, "/api/users/me", "", "")
			require.Equal(t, http.StatusUnauthorized, code)
		})
	})

	t.Run("healthz", func(t *testing.T) {
		withServer(t, func(c apiClient) {
			code, body := c.do(http.MethodGet, "/healthz", "", "")

			require.Equal(t, http.StatusOK, code)
			require.JSONEq(t, `{"status": "ok"}`, body)
		})
	})

	t.Run("unknown route", func(t *testing.T) {
		withServer(t, func(c apiClient) {
			code, _ := c.do(http.MethodGet, "/api/auth/login", "", "")

			require.Equal(t, http.StatusMethodNotAllowed, code)
		})
	})
}
