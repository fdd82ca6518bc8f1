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

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend string

	// CSV ledger
	CSVPath string

	// SQLite ledger
	SQLiteDBPath string

	// Google Sheets ledger
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Geocoding
	GeocodeBaseURL     string
	GeocodeCountry     string
	GeocodeMinInterval time.Duration
	GeocodeConcurrency int

	// Worker
	SweepInterval time.Duration

	// Service tuning
	SnapshotTTL            time.Duration
	ReplaceShrinkTolerance int
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		DataBackend: getEnv("DATA_BACKEND", "csv"),

		CSVPath:      getEnv("CSV_PATH", "./data/sessions.csv"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/chargelog.db"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Sessions"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "chargelog"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "resolve_locations"),

		GeocodeBaseURL:     getEnv("GEOCODE_BASE_URL", ""),
		GeocodeCountry:     getEnv("GEOCODE_COUNTRY", "Malaysia"),
		GeocodeMinInterval: getEnvDuration("GEOCODE_MIN_INTERVAL", time.Second),
		GeocodeConcurrency: getEnvInt("GEOCODE_CONCURRENCY", 4),

		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),

		SnapshotTTL:            getEnvDuration("SNAPSHOT_TTL", 30*time.Second),
		ReplaceShrinkTolerance: getEnvInt("REPLACE_SHRINK_TOLERANCE", 0),
	}

	return cfg
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

	// Validate data backend
	validBackends := []string{"csv", "sqlite", "sheets"}
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

	// Validate CSV configuration if backend is csv
	if c.DataBackend == "csv" && c.CSVPath == "" {
		errors = append(errors, "CSV path cannot be empty when using csv backend")
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
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
	}

	// Validate Google Sheets configuration if backend is sheets
	if c.DataBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when using sheets backend")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
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

	// Validate geocoding configuration
	if c.GeocodeMinInterval < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid geocode min interval %v: must be at least 100ms", c.GeocodeMinInterval))
	}
	if c.GeocodeConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid geocode concurrency %d: must be at least 1", c.GeocodeConcurrency))
	} else if c.GeocodeConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid geocode concurrency %d: must be at most 64", c.GeocodeConcurrency))
	}

	// Validate worker configuration
	if c.SweepInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sweep interval %v: must be at least 1 second", c.SweepInterval))
	} else if c.SweepInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sweep interval %v: must be at most 24 hours", c.SweepInterval))
	}

	if c.SnapshotTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid snapshot TTL %v: must be at least 1 second", c.SnapshotTTL))
	}
	if c.ReplaceShrinkTolerance < 0 {
		errors = append(errors, fmt.Sprintf("invalid replace shrink tolerance %d: must not be negative", c.ReplaceShrinkTolerance))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
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
