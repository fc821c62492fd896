// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for all databases (always absolute)
	Port           int
	DevMode        bool
	LogLevel       string
	LogCaller      bool // Annotate log entries with their call site
	GeminiAPIKey   string // Empty disables hybrid and model-only processing
	GeminiModel    string
	TextGenTimeout int // Seconds; bound on text-generation calls
	SessionTTL     int // Minutes; guest session eviction threshold
	TraceRetention int // Days; analytics trace pruning
	TraceRingSize  int // Entries kept in the in-memory trace ring
	Backup         *BackupConfig
}

// BackupConfig holds snapshot backup configuration.
// Backups are disabled when Bucket is empty.
type BackupConfig struct {
	Bucket    string
	Endpoint  string // S3-compatible endpoint; empty means AWS default
	Region    string
	AccessKey string
	SecretKey string
}

// Enabled reports whether backups are configured.
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Resolve the data directory to an absolute path and make sure it exists
	dataDir := getEnv("CHATFOLIO_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		Port:           getEnvAsInt("PORT", 8090),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogCaller:      getEnvAsBool("LOG_CALLER", false),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		TextGenTimeout: getEnvAsInt("TEXTGEN_TIMEOUT_SECONDS", 15),
		SessionTTL:     getEnvAsInt("SESSION_TTL_MINUTES", 30),
		TraceRetention: getEnvAsInt("TRACE_RETENTION_DAYS", 30),
		TraceRingSize:  getEnvAsInt("TRACE_RING_SIZE", 256),
		Backup: &BackupConfig{
			Bucket:    getEnv("BACKUP_BUCKET", ""),
			Endpoint:  getEnv("BACKUP_ENDPOINT", ""),
			Region:    getEnv("BACKUP_REGION", "auto"),
			AccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_SECRET_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.TextGenTimeout <= 0 {
		return fmt.Errorf("TEXTGEN_TIMEOUT_SECONDS must be positive, got %d", c.TextGenTimeout)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be positive, got %d", c.SessionTTL)
	}
	if c.TraceRingSize <= 0 {
		return fmt.Errorf("TRACE_RING_SIZE must be positive, got %d", c.TraceRingSize)
	}
	// Gemini credentials are optional: without them the service still handles
	// everything the rule-based classifier can resolve on its own.
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
