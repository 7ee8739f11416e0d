package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Local database
	SQLiteDBPath string

	// Remote backend selection
	RemoteBackend string

	// REST backend
	RESTBaseURL string
	RESTAPIKey  string
	RESTTimeout time.Duration

	// Firestore backend
	FirestoreProjectID       string
	FirestoreCollection      string
	FirestoreCredentialsFile string

	// AMQP (optional: empty URL disables messaging)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Sync worker
	SyncInterval  time.Duration
	SyncBatchSize int

	// Connectivity probe; empty means assume online
	ProbeURL     string
	ProbeTimeout time.Duration

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/spend.db"),

		RemoteBackend: getEnv("REMOTE_BACKEND", "memory"),

		RESTBaseURL: getEnv("REST_BASE_URL", ""),
		RESTAPIKey:  getEnv("REST_API_KEY", ""),
		RESTTimeout: getEnvDuration("REST_TIMEOUT", 15*time.Second),

		FirestoreProjectID:       getEnv("FIRESTORE_PROJECT_ID", ""),
		FirestoreCollection:      getEnv("FIRESTORE_COLLECTION", "expenses"),
		FirestoreCredentialsFile: getEnv("FIRESTORE_CREDENTIALS_FILE", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "spend"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_requests"),

		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 50),

		ProbeURL:     getEnv("CONNECTIVITY_PROBE_URL", ""),
		ProbeTimeout: getEnvDuration("CONNECTIVITY_PROBE_TIMEOUT", 3*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate remote backend
	validBackends := []string{"memory", "rest", "firestore"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.RemoteBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid remote backend '%s': must be one of %v", c.RemoteBackend, validBackends))
	}

	// Validate SQLite path
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate REST configuration if backend is rest
	if c.RemoteBackend == "rest" {
		if c.RESTBaseURL == "" {
			errors = append(errors, "REST base URL is required when using rest backend")
		} else if parsedURL, err := url.Parse(c.RESTBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid REST base URL '%s': %v", c.RESTBaseURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid REST base URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
		if c.RESTTimeout < time.Second {
			errors = append(errors, fmt.Sprintf("invalid REST timeout %v: must be at least 1 second", c.RESTTimeout))
		}
	}

	// Validate Firestore configuration if backend is firestore
	if c.RemoteBackend == "firestore" {
		if c.FirestoreProjectID == "" {
			errors = append(errors, "Firestore project ID is required when using firestore backend")
		}
		if c.FirestoreCollection == "" {
			errors = append(errors, "Firestore collection cannot be empty when using firestore backend")
		}
		if c.FirestoreCredentialsFile != "" {
			if _, err := os.Stat(c.FirestoreCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Firestore credentials file does not exist: %s", c.FirestoreCredentialsFile))
			}
		}
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
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate worker configuration
	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	// Validate connectivity probe if provided
	if c.ProbeURL != "" {
		if parsedURL, err := url.Parse(c.ProbeURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid connectivity probe URL '%s': %v", c.ProbeURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid connectivity probe URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
	}

	// Validate log level
	validLevels := []string{"debug", "info", "warn", "error"}
	isValidLevel := false
	for _, level := range validLevels {
		if strings.ToLower(c.LogLevel) == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// SlogLevel maps the configured level string onto slog's levels.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
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
