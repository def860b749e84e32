package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds client configuration
type Config struct {
	APIBaseURL    string
	SessionFile   string
	SessionKey    string
	HTTPTimeout   time.Duration
	LogLevel      string
	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SenderEmail   string
	WatchSchedule string
}

// NewConfig loads client configuration from environment variables
func NewConfig() (*Config, error) {
	timeout, err := time.ParseDuration(getEnv("HTTP_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("HTTP_TIMEOUT is invalid: %w", err)
	}

	cfg := &Config{
		APIBaseURL:    getEnv("BANK_API_BASE_URL", "http://localhost:5000/api"),
		SessionFile:   getEnv("BANK_SESSION_FILE", defaultSessionFile()),
		SessionKey:    getEnv("BANK_SESSION_KEY", ""),
		HTTPTimeout:   timeout,
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SenderEmail:   getEnv("SENDER_EMAIL", "no-reply@bank.local"),
		WatchSchedule: getEnv("WATCH_SCHEDULE", "@every 1m"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values flags may have overridden
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("BANK_API_BASE_URL is required")
	}
	if c.SessionFile == "" {
		return fmt.Errorf("BANK_SESSION_FILE is required")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

// ReceiptsEnabled reports whether SMTP is configured
func (c *Config) ReceiptsEnabled() bool {
	return c.SMTPHost != ""
}

// LedgerConfig holds configuration of the development ledger
type LedgerConfig struct {
	Port       string
	DBConn     string
	LogLevel   string
	JWTSecret  string
	TokenTTL   time.Duration
	AdminEmail string
}

// NewLedgerConfig loads development ledger configuration from environment variables
func NewLedgerConfig() (*LedgerConfig, error) {
	ttl, err := time.ParseDuration(getEnv("TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("TOKEN_TTL is invalid: %w", err)
	}

	cfg := &LedgerConfig{
		Port:       getEnv("PORT", "5000"),
		DBConn:     getEnv("DB_CONN", ""),
		LogLevel:   getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:  getEnv("JWT_SECRET", "secret"),
		TokenTTL:   ttl,
		AdminEmail: getEnv("ADMIN_EMAIL", "admin@bank.local"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("PORT is required")
	}

	return cfg, nil
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "bankcli", "session.json")
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
