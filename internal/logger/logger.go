package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

// Pick logger for environment: json in production, text otherwise
func New(env string, level string) (Logger, error) {
	if env == EnvProd {
		return NewJSONLogger(level)
	}
	return NewTextLogger(level)
}

// Text logger writing to stderr
func NewTextLogger(level string) (Logger, error) {
	opts, err := handlerOptions(level)
	if err != nil {
		return nil, err
	}
	return newSlogLogger(slog.NewTextHandler(os.Stderr, opts)), nil
}

// JSON logger writing to stderr
func NewJSONLogger(level string) (Logger, error) {
	opts, err := handlerOptions(level)
	if err != nil {
		return nil, err
	}
	return newSlogLogger(slog.NewJSONHandler(os.Stderr, opts)), nil
}

// Logger for tests and tools; writes nothing
func NewNoOpLogger() Logger {
	return newSlogLogger(slog.NewTextHandler(io.Discard, nil))
}

func handlerOptions(level string) (*slog.HandlerOptions, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logger error: %w", err)
	}

	return &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   true,
		ReplaceAttr: replace,
	}, nil
}
