package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"recur/internal/recurring"
)

type Config struct {
	// HTTP Server
	Port               string        `koanf:"PORT"`
	RequestTimeout     time.Duration `koanf:"REQUEST_TIMEOUT"`
	RateLimitPerMinute int           `koanf:"RATE_LIMIT_PER_MINUTE"`
	CORSAllowedOrigins string        `koanf:"CORS_ALLOWED_ORIGINS"`

	// Storage
	DataBackend  string `koanf:"DATA_BACKEND"`
	SQLiteDBPath string `koanf:"SQLITE_DB_PATH"`
	PostgresURL  string `koanf:"POSTGRES_URL"`

	// AMQP, optional
	AMQPURL      string `koanf:"AMQP_URL"`
	AMQPExchange string `koanf:"AMQP_EXCHANGE"`
	AMQPQueue    string `koanf:"AMQP_QUEUE"`

	// Detection
	AmountTolerancePercent float64       `koanf:"AMOUNT_TOLERANCE_PERCENT"`
	DateToleranceDays      int           `koanf:"DATE_TOLERANCE_DAYS"`
	UpdateConcurrency      int           `koanf:"UPDATE_CONCURRENCY"`
	CacheTTL               time.Duration `koanf:"CACHE_TTL"`
	CacheSize              int           `koanf:"CACHE_SIZE"`

	// Google Sheets import
	GoogleSpreadsheetID      string `koanf:"GOOGLE_SPREADSHEET_ID"`
	GoogleSheetName          string `koanf:"GOOGLE_SHEET_NAME"`
	GoogleSheetSkipRows      int    `koanf:"GOOGLE_SHEET_SKIP_ROWS"`
	GoogleServiceAccountJSON string `koanf:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	GoogleServiceAccountFile string `koanf:"GOOGLE_SERVICE_ACCOUNT_FILE"`
}

// Default returns the configuration used for every key missing from the
// environment.
func Default() *Config {
	return &Config{
		Port:               "1984",
		RequestTimeout:     10 * time.Second,
		RateLimitPerMinute: 60,

		DataBackend:  "sqlite",
		SQLiteDBPath: "./data/recur.db",

		AMQPExchange: "recur",
		AMQPQueue:    "detect_recurring",

		AmountTolerancePercent: recurring.DefaultConfig().AmountTolerancePercent,
		DateToleranceDays:      recurring.DefaultConfig().DateToleranceDays,
		UpdateConcurrency:      8,
		CacheTTL:               5 * time.Minute,
		CacheSize:              256,

		GoogleSheetName:     "BE_challenge_transactions",
		GoogleSheetSkipRows: 3,
	}
}

// Load reads the configuration from the environment on top of Default.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Detection returns the engine tolerances.
func (c *Config) Detection() recurring.Config {
	return recurring.Config{
		AmountTolerancePercent: c.AmountTolerancePercent,
		DateToleranceDays:      c.DateToleranceDays,
	}
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RequestTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: must be at least 1 second", c.RequestTimeout))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite", "postgres"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == "postgres" {
		if c.PostgresURL == "" {
			errors = append(errors, "Postgres URL cannot be empty when using postgres backend")
		} else if parsedURL, err := url.Parse(c.PostgresURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Postgres URL: %v", err))
		} else if parsedURL.Scheme != "postgres" && parsedURL.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid Postgres URL scheme '%s': must be 'postgres' or 'postgresql'", parsedURL.Scheme))
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

	// Validate detection tolerances
	if err := c.Detection().Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid detection config: %v", err))
	}
	if c.UpdateConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid update concurrency %d: must be at least 1", c.UpdateConcurrency))
	} else if c.UpdateConcurrency > 256 {
		errors = append(errors, fmt.Sprintf("invalid update concurrency %d: must be at most 256", c.UpdateConcurrency))
	}
	if c.CacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must not be negative", c.CacheSize))
	}
	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache ttl %v: must not be negative", c.CacheTTL))
	}

	if c.GoogleSheetSkipRows < 0 {
		errors = append(errors, fmt.Sprintf("invalid sheet skip rows %d: must not be negative", c.GoogleSheetSkipRows))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
