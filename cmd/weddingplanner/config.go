package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/weddingplanner/internal/logger"
)

const (
	defaultListenAddr    = "localhost:8000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultEnvironment   = logger.EnvProd
	defaultAuthRateLimit = 10
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to: postgres://... or mongodb://...
	DatabaseDSN string

	// Secret key to sign access tokens
	SecretKey string

	// Secret key to sign refresh tokens. SecretKey is used if empty
	RefreshSecretKey string

	// Token lifetimes. Token manager defaults are used if zero
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// OAuth client id Google ID tokens must be issued for
	// Google sign-in answers with server error if empty
	GoogleClientID string

	// Browser origins allowed to call the api. Any if empty
	CORSOrigins []string

	// Requests per minute per client to auth endpoints. Negative disables the limit
	AuthRateLimit int

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:      defaultLoggingLevel,
		ListenAddr:    defaultListenAddr,
		Environment:   defaultEnvironment,
		AuthRateLimit: defaultAuthRateLimit,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}
	setList := func(o *[]string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = splitList(value)
			}
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":        setString(&c.ListenAddr),
		"DATABASE_URI":       setString(&c.DatabaseDSN),
		"SECRET_KEY":         setString(&c.SecretKey),
		"REFRESH_SECRET_KEY": setString(&c.RefreshSecretKey),
		"ACCESS_TOKEN_TTL":   setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL":  setDuration(&c.RefreshTokenTTL),
		"GOOGLE_CLIENT_ID":   setString(&c.GoogleClientID),
		"CORS_ORIGINS":       setList(&c.CORSOrigins),
		"AUTH_RATE_LIMIT":    setInt(&c.AuthRateLimit),
		"LOG_LEVEL":          setString(&c.LogLevel),
		"ENVIRONMENT":        setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("config error: invalid %s. Err: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("weddingplanner", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string (postgres:// or mongodb://)")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key to sign access tokens")
	fs.StringVar(&c.RefreshSecretKey, "refresh-secret-key", c.RefreshSecretKey, "Secret key to sign refresh tokens")
	fs.DurationVar(&c.AccessTokenTTL, "access-token-ttl", c.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTokenTTL, "refresh-token-ttl", c.RefreshTokenTTL, "Refresh token lifetime")
	fs.StringVarP(&c.GoogleClientID, "google-client-id", "g", c.GoogleClientID, "Google OAuth client id")
	fs.StringSliceVar(&c.CORSOrigins, "cors-origins", c.CORSOrigins, "Allowed browser origins, comma separated")
	fs.IntVar(&c.AuthRateLimit, "auth-rate-limit", c.AuthRateLimit, "Auth requests per minute per client, negative to disable")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}

func splitList(value string) []string {
	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
