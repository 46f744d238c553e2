package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds application configuration
type Config struct {
	Port     string
	DBConn   string
	LogLevel string

	// Transaction history provider
	BankAPIURL string

	// Downstream ledger webhook
	LedgerWebhookURL string
	WebhookSecret    string

	// Optional API key protection for the decision endpoints. When set,
	// requests must carry a matching X-API-Key; the value here is a bcrypt
	// hash, never the key itself.
	APIKeyHash string

	// SMTP settings for the operations reminder digest
	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SenderEmail   string
	OpsEmail      string
	ReminderAhead int // days before due date to include an installment
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DBConn:           getEnv("DB_CONN", "host=localhost port=5433 user=postgres password=postgres dbname=decisions sslmode=disable"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		BankAPIURL:       getEnv("BANK_API_URL", "http://localhost:8001"),
		LedgerWebhookURL: getEnv("LEDGER_WEBHOOK_URL", "http://localhost:8002/mock-ledger"),
		WebhookSecret:    getEnv("WEBHOOK_SECRET", ""),
		APIKeyHash:       getEnv("API_KEY_HASH", ""),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getEnv("SMTP_PORT", "587"),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		SenderEmail:      getEnv("SENDER_EMAIL", "noreply@meridianpay.example"),
		OpsEmail:         getEnv("OPS_EMAIL", ""),
	}

	ahead, err := strconv.Atoi(getEnv("REMINDER_AHEAD_DAYS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_AHEAD_DAYS: %w", err)
	}
	cfg.ReminderAhead = ahead

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.BankAPIURL == "" {
		return nil, fmt.Errorf("BANK_API_URL is required")
	}
	if cfg.LedgerWebhookURL == "" {
		return nil, fmt.Errorf("LEDGER_WEBHOOK_URL is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
