package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Database    DatabaseConfig
	API         APIConfig
	Worker      WorkerConfig
	Queue       QueueConfig
	RecordStore RecordStoreConfig
	Messaging   MessagingConfig
	Retry       RetryConfig
	Auth        AuthConfig
	Logging     LoggingConfig
	Extraction  ExtractionConfig
	Dedup       DedupConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// APIConfig holds API server settings
type APIConfig struct {
	Port string
	Host string
}

// WorkerConfig holds worker settings
type WorkerConfig struct {
	PollInterval time.Duration
	Concurrency  int
}

// QueueConfig holds queue settings
type QueueConfig struct {
	Type     string // "redis" or "database"
	RedisURL string
	RedisKey string
}

// RecordStoreConfig holds settings for the upstream items API
type RecordStoreConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
	BoardID string
}

// MessagingConfig holds messaging provider client settings
type MessagingConfig struct {
	URL          string
	Token        string
	Timeout      time.Duration
	TemplateName string
	Language     string
}

// RetryConfig holds retry logic settings
type RetryConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	Enabled      bool
	SharedSecret string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string
}

// ExtractionConfig controls how lead details are pulled out of an items page
type ExtractionConfig struct {
	FilePath      string
	NamePolicy    string // "first_token" or "full_name"
	PhoneColumnID string // empty selects the heuristic phone column scan
}

// DedupConfig holds status callback deduplication settings
type DedupConfig struct {
	Enabled bool
	TTL     time.Duration
}

// Load loads configuration from environment variables and files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5433"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "lead_adapter"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		API: APIConfig{
			Port: getEnv("API_PORT", "8080"),
			Host: getEnv("API_HOST", "0.0.0.0"),
		},
		Worker: WorkerConfig{
			PollInterval: parseDuration(getEnv("WORKER_POLL_INTERVAL", "5s"), 5*time.Second),
			Concurrency:  parseInt(getEnv("WORKER_CONCURRENCY", "5"), 5),
		},
		Queue: QueueConfig{
			Type:     getEnv("QUEUE_TYPE", "database"),
			RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
			RedisKey: getEnv("REDIS_QUEUE_KEY", "lead_adapter:jobs"),
		},
		RecordStore: RecordStoreConfig{
			URL:     getEnv("RECORD_STORE_URL", ""),
			Token:   getEnv("RECORD_STORE_TOKEN", ""),
			Timeout: parseDuration(getEnv("RECORD_STORE_TIMEOUT", "30s"), 30*time.Second),
			BoardID: getEnv("RECORD_STORE_BOARD_ID", ""),
		},
		Messaging: MessagingConfig{
			URL:          getEnv("MESSAGING_API_URL", ""),
			Token:        getEnv("MESSAGING_API_TOKEN", ""),
			Timeout:      parseDuration(getEnv("MESSAGING_API_TIMEOUT", "30s"), 30*time.Second),
			TemplateName: getEnv("MESSAGING_TEMPLATE_NAME", ""),
			Language:     getEnv("MESSAGING_TEMPLATE_LANGUAGE", "en_US"),
		},
		Retry: RetryConfig{
			MaxAttempts: parseInt(getEnv("MAX_RETRY_ATTEMPTS", "5"), 5),
			BackoffBase: parseDuration(getEnv("RETRY_BACKOFF_BASE", "30s"), 30*time.Second),
		},
		Auth: AuthConfig{
			Enabled:      parseBool(getEnv("ENABLE_AUTH", "false")),
			SharedSecret: getEnv("SHARED_SECRET", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Extraction: ExtractionConfig{
			FilePath:      getEnv("EXTRACTION_CONFIG_FILE", ""),
			NamePolicy:    getEnv("NAME_POLICY", "first_token"),
			PhoneColumnID: getEnv("PHONE_COLUMN_ID", ""),
		},
		Dedup: DedupConfig{
			Enabled: parseBool(getEnv("ENABLE_STATUS_DEDUP", "false")),
			TTL:     parseDuration(getEnv("STATUS_DEDUP_TTL", "24h"), 24*time.Hour),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Extraction settings from file override the environment
	if err := cfg.LoadExtractionConfig(); err != nil {
		return nil, fmt.Errorf("failed to load extraction config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration fields are set
func (c *Config) Validate() error {
	if c.RecordStore.URL == "" {
		return fmt.Errorf("RECORD_STORE_URL is required")
	}
	if c.RecordStore.Token == "" {
		return fmt.Errorf("RECORD_STORE_TOKEN is required")
	}
	if c.Messaging.URL == "" {
		return fmt.Errorf("MESSAGING_API_URL is required")
	}
	if c.Messaging.Token == "" {
		return fmt.Errorf("MESSAGING_API_TOKEN is required")
	}
	if c.Messaging.TemplateName == "" {
		return fmt.Errorf("MESSAGING_TEMPLATE_NAME is required")
	}
	if c.Auth.Enabled && c.Auth.SharedSecret == "" {
		return fmt.Errorf("SHARED_SECRET is required when ENABLE_AUTH is true")
	}
	if c.Queue.Type != "database" && c.Queue.Type != "redis" {
		return fmt.Errorf("QUEUE_TYPE must be 'database' or 'redis', got '%s'", c.Queue.Type)
	}
	return nil
}

// LoadExtractionConfig reads the optional YAML extraction file. ${VAR}
// references in the file are expanded from the environment.
func (c *Config) LoadExtractionConfig() error {
	if c.Extraction.FilePath == "" {
		return nil
	}

	data, err := os.ReadFile(c.Extraction.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read extraction config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var raw struct {
		Extraction struct {
			NamePolicy    string `yaml:"name_policy"`
			PhoneColumnID string `yaml:"phone_column_id"`
		} `yaml:"extraction"`
	}
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return fmt.Errorf("failed to parse extraction config YAML: %w", err)
	}

	if policy := strings.TrimSpace(raw.Extraction.NamePolicy); policy != "" {
		c.Extraction.NamePolicy = policy
	}
	if columnID := strings.TrimSpace(raw.Extraction.PhoneColumnID); columnID != "" {
		c.Extraction.PhoneColumnID = columnID
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func parseInt(value string, defaultValue int) int {
	var result int
	_, err := fmt.Sscanf(value, "%d", &result)
	if err != nil {
		return defaultValue
	}
	return result
}

func parseBool(value string) bool {
	return value == "true" || value == "1" || value == "yes"
}
