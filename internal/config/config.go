// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Provider   ProviderConfig
	Reconciler ReconcilerConfig
	Redis      RedisConfig
	AMQP       AMQPConfig
	Summarizer SummarizerConfig
	Logging    LoggingConfig
	Sentry     SentryConfig
	Worker     WorkerConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr is the listen address for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN builds the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite3" {
		if d.Name == "" {
			return "file::memory:?cache=shared&_foreign_keys=on"
		}
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", d.Name)
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

type ProviderConfig struct {
	BaseURL       string
	APIKey        string
	AgentID       string
	PhoneNumberID string
	WebhookSecret string
	HTTPTimeout   time.Duration
	RateLimit     float64
	BatchSize     int
}

type ReconcilerConfig struct {
	ReviewSentimentThreshold float64
	DedupMaxEntries          int
	DefaultRegion            string
	WebhookArchivePath       string
}

type RedisConfig struct {
	URL string
}

type AMQPConfig struct {
	URL string
}

type SummarizerConfig struct {
	OpenAIAPIKey string
	Model        string
}

type LoggingConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type SentryConfig struct {
	DSN         string
	Environment string
}

type WorkerConfig struct {
	RetryDispatchSpec string
	DedupPruneSpec    string
	DncSnapshotSpec   string
	DncSnapshotPath   string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// a missing .env is fine; the OS environment still applies
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          getEnvString("DB_DRIVER", "postgres"),
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			Name:            getEnvString("DB_NAME", "voiceops"),
			SSLMode:         getEnvString("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Provider: ProviderConfig{
			BaseURL:       getEnvString("VOICE_API_BASE_URL", "https://api.elevenlabs.io"),
			APIKey:        getEnvString("VOICE_API_KEY", ""),
			AgentID:       getEnvString("VOICE_AGENT_ID", ""),
			PhoneNumberID: getEnvString("VOICE_PHONE_NUMBER_ID", ""),
			WebhookSecret: getEnvString("VOICE_WEBHOOK_SECRET", ""),
			HTTPTimeout:   getEnvDuration("VOICE_HTTP_TIMEOUT", 30*time.Second),
			RateLimit:     getEnvFloat("VOICE_RATE_LIMIT", 5),
			BatchSize:     getEnvInt("CAMPAIGN_BATCH_SIZE", 100),
		},
		Reconciler: ReconcilerConfig{
			ReviewSentimentThreshold: getEnvFloat("REVIEW_SENTIMENT_THRESHOLD", -0.3),
			DedupMaxEntries:          getEnvInt("DEDUP_MAX_ENTRIES", 10000),
			DefaultRegion:            getEnvString("DEFAULT_REGION", "US"),
			WebhookArchivePath:       getEnvString("WEBHOOK_ARCHIVE_PATH", ""),
		},
		Redis: RedisConfig{
			URL: getEnvString("REDIS_URL", ""),
		},
		AMQP: AMQPConfig{
			URL: getEnvString("AMQP_URL", ""),
		},
		Summarizer: SummarizerConfig{
			OpenAIAPIKey: getEnvString("OPENAI_API_KEY", ""),
			Model:        getEnvString("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			File:       getEnvString("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		},
		Sentry: SentryConfig{
			DSN:         getEnvString("SENTRY_DSN", ""),
			Environment: getEnvString("SENTRY_ENVIRONMENT", "development"),
		},
		Worker: WorkerConfig{
			RetryDispatchSpec: getEnvString("CRON_RETRY_DISPATCH", "@every 5m"),
			DedupPruneSpec:    getEnvString("CRON_DEDUP_PRUNE", "@hourly"),
			DncSnapshotSpec:   getEnvString("CRON_DNC_SNAPSHOT", "@every 15m"),
			DncSnapshotPath:   getEnvString("DNC_SNAPSHOT_PATH", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var problems []string

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		problems = append(problems, fmt.Sprintf("DB_DRIVER must be postgres or sqlite3, got %q", c.Database.Driver))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "SERVER_PORT out of range")
	}
	if c.Provider.BatchSize <= 0 {
		problems = append(problems, "CAMPAIGN_BATCH_SIZE must be positive")
	}
	if c.Provider.HTTPTimeout <= 0 {
		problems = append(problems, "VOICE_HTTP_TIMEOUT must be positive")
	}
	if c.Reconciler.DedupMaxEntries <= 0 {
		problems = append(problems, "DEDUP_MAX_ENTRIES must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
