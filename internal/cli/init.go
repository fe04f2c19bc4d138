// Package cli implements the frintab command line: process setup, the
// application wiring shared by every command and the cobra command tree.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"frintab/internal/config"
	"frintab/internal/credstore"
	applog "frintab/internal/log"
)

// SetupLogger builds the process logger from cfg and installs it as the
// slog default. verbose forces debug level.
func SetupLogger(cfg *config.Config, w io.Writer, verbose bool) *applog.Logger {
	level := applog.ParseLevel(cfg.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}
	logger := applog.New(applog.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: applog.ComponentApp,
		Output:    w,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitCredentials opens the persisted credential store at dbPath.
func InitCredentials(logger *applog.Logger, dbPath string) (*credstore.SQLite, error) {
	store, err := credstore.NewSQLite(dbPath, logger)
	if err != nil {
		logger.Error("Failed to open credential store", applog.FieldError, err, applog.FieldPath, dbPath)
		return nil, err
	}
	return store, nil
}

// GracefulShutdown returns a context cancelled on SIGINT/SIGTERM or when
// parent ends, and a channel closed once cleanup has run.
func GracefulShutdown(parent context.Context, logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}
		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete", applog.FieldOperation, applog.OpShutdown)
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached", applog.FieldOperation, applog.OpShutdown)
		}
		close(done)
	}()

	return ctx, done
}
