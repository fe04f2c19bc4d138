package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Ledger backends the client can talk to.
const (
	BackendHTTP   = "http"
	BackendMemory = "memory"
)

type Config struct {
	// Remote ledger service
	Backend     string
	APIURL      string
	HTTPTimeout time.Duration
	PageSize    int
	// SeedFile preloads the memory backend.
	SeedFile string

	// Persisted credentials
	CredentialsDBPath string

	// Read cache
	CacheTTL  time.Duration
	CacheSize int

	// AMQP change events (optional)
	AMQPURL      string
	AMQPExchange string

	// Google Sheets export (optional)
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Metrics endpoint for long-running commands
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Development fake server
	DevServerPort string
}

func Load() *Config {
	cfg := &Config{
		Backend:     getEnv("FRINTAB_BACKEND", BackendHTTP),
		APIURL:      getEnv("FRINTAB_API_URL", "http://localhost:5000/api"),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 15*time.Second),
		PageSize:    getEnvInt("PAGE_SIZE", 5),
		SeedFile:    getEnv("FRINTAB_SEED_FILE", ""),

		CredentialsDBPath: getEnv("CREDENTIALS_DB_PATH", defaultCredentialsPath()),

		CacheTTL:  getEnvDuration("CACHE_TTL", 30*time.Second),
		CacheSize: getEnvInt("CACHE_SIZE", 128),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "frintab"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", ""),

		MetricsAddr: getEnv("METRICS_ADDR", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "tint"),

		DevServerPort: getEnv("DEVSERVER_PORT", "5000"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	switch c.Backend {
	case BackendHTTP, BackendMemory:
	default:
		errors = append(errors, fmt.Sprintf("invalid backend '%s': must be one of [%s %s]", c.Backend, BackendHTTP, BackendMemory))
	}
	if c.SeedFile != "" && c.Backend != BackendMemory {
		errors = append(errors, "seed file is only used by the memory backend")
	}

	// Validate API URL
	if c.APIURL == "" {
		errors = append(errors, "API URL cannot be empty")
	} else if parsedURL, err := url.Parse(c.APIURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid API URL '%s': %v", c.APIURL, err))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid API URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	}

	if c.HTTPTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	}

	if c.PageSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid page size %d: must be at least 1", c.PageSize))
	} else if c.PageSize > 100 {
		errors = append(errors, fmt.Sprintf("invalid page size %d: must be at most 100", c.PageSize))
	}

	// Validate credentials database path
	if c.CredentialsDBPath == "" {
		errors = append(errors, "credentials database path cannot be empty")
	} else {
		dir := filepath.Dir(c.CredentialsDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o700); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create credentials directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "tint":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of [text json tint]", c.LogFormat))
	}

	if c.DevServerPort != "" {
		if port, err := strconv.Atoi(c.DevServerPort); err != nil {
			errors = append(errors, fmt.Sprintf("invalid dev server port '%s': must be a number", c.DevServerPort))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("invalid dev server port %d: must be between 1 and 65535", port))
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// EventsEnabled reports whether change events should be published and consumed.
func (c *Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}

// ExportEnabled reports whether a spreadsheet is configured for export.
func (c *Config) ExportEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

func defaultCredentialsPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "frintab", "session.db")
	}
	return "./data/session.db"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
