package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultDatabaseURL = "sqlite:///reminders.db"
)

type Config struct {
	BotToken       string
	Port           string
	TelegramAPIURL string
	LogLevel       string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	// Location is the single reference clock every time phrase resolves against.
	Location         *time.Location
	DispatchWorkers  int
	SendRate         float64
	HistoryRetention time.Duration
}

// Load reads the process environment. godotenv has already merged .env.local
// into it by the time this runs.
func Load() (*Config, error) {
	cfg := &Config{
		BotToken:       os.Getenv("BOT_TOKEN"),
		Port:           GetEnv("PORT", "8080"),
		TelegramAPIURL: GetEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		LogLevel:       GetEnv("LOG_LEVEL", "info"),
		DatabaseURL:    DatabaseURL(),
	}
	if cfg.BotToken == "" {
		return nil, errors.New("BOT_TOKEN is required. Set it in .env file or as environment variable")
	}

	if os.Getenv("R_HOST") != "" {
		host, port, password := RedisConfig()
		cfg.RedisAddr = net.JoinHostPort(host, port)
		cfg.RedisPassword = password
	}

	loc, err := time.LoadLocation(GetEnv("REMINDER_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if cfg.DispatchWorkers, err = strconv.Atoi(GetEnv("DISPATCH_WORKERS", "2")); err != nil || cfg.DispatchWorkers < 1 {
		return nil, fmt.Errorf("invalid DISPATCH_WORKERS %q", os.Getenv("DISPATCH_WORKERS"))
	}
	if cfg.SendRate, err = strconv.ParseFloat(GetEnv("SEND_RATE", "25"), 64); err != nil || cfg.SendRate <= 0 {
		return nil, fmt.Errorf("invalid SEND_RATE %q", os.Getenv("SEND_RATE"))
	}
	if cfg.HistoryRetention, err = time.ParseDuration(GetEnv("HISTORY_RETENTION", "720h")); err != nil {
		return nil, fmt.Errorf("invalid HISTORY_RETENTION: %w", err)
	}

	return cfg, nil
}

// StorageDriver picks the backend from DatabaseURL and returns the
// driver-specific DSN.
func (c *Config) StorageDriver() (driver, dsn string) {
	switch {
	case strings.HasPrefix(c.DatabaseURL, "sqlite:///"):
		return DriverSQLite, strings.TrimPrefix(c.DatabaseURL, "sqlite:///")
	case strings.HasPrefix(c.DatabaseURL, "sqlite://"):
		return DriverSQLite, strings.TrimPrefix(c.DatabaseURL, "sqlite://")
	default:
		return DriverPostgres, c.DatabaseURL
	}
}

// DatabaseURL prefers DATABASE_URL, then the discrete DB_* variables, then a
// local SQLite file.
func DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host, port, user, password, databaseName := DatabaseConfig()
	if host == "" {
		return defaultDatabaseURL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, databaseName)
}

// DatabaseConfig returns host, port, user, password, database name
func DatabaseConfig() (string, string, string, string, string) {
	host := os.Getenv("DB_HOST")
	port := GetEnv("DB_PORT", "5432")
	user := GetEnv("DB_USER", "postgres")
	password := GetEnv("DB_PASSWORD", "")
	databaseName := GetEnv("DB_NAME", "reminders")
	return host, port, user, password, databaseName
}

// RedisConfig returns host, port, password
func RedisConfig() (string, string, string) {
	host := GetEnv("R_HOST", "redis")
	port := GetEnv("R_PORT", "6379")
	password := GetEnv("R_PASS", "")
	return host, port, password
}

// GetEnv retrieves values from environment files based on the key it matches,
// returns a string (value) if not empty
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
