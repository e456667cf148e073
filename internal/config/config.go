package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config keeps runtime settings for the console.
type Config struct {
	TelegramToken  string
	APIBaseURL     string
	DatabaseURL    string
	ReportInterval time.Duration
	PageSize       int
	ToastDuration  time.Duration
	APITimeout     time.Duration
	Location       *time.Location
	TracingEnabled bool
	AllowedUsers   map[int64]bool
}

// Load reads configuration from .env, an optional autobot-console.yaml and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[warn] .env not loaded: %v", err)
	}

	v := viper.New()
	v.SetConfigName("autobot-console")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("API_BASE_URL", "http://localhost:8080")
	v.SetDefault("DATABASE_URL", "autobot_console.db")
	v.SetDefault("REPORT_INTERVAL_HOURS", "5")
	v.SetDefault("PAGE_SIZE", "12")
	v.SetDefault("TOAST_DURATION", "3s")
	v.SetDefault("API_TIMEOUT", "30s")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("TRACING_ENABLED", "false")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		TelegramToken:  strings.TrimSpace(v.GetString("TELEGRAM_TOKEN")),
		APIBaseURL:     strings.TrimRight(strings.TrimSpace(v.GetString("API_BASE_URL")), "/"),
		DatabaseURL:    strings.TrimSpace(v.GetString("DATABASE_URL")),
		ReportInterval: parseInterval(strings.TrimSpace(v.GetString("REPORT_INTERVAL_HOURS"))),
		PageSize:       parsePositive(v.GetString("PAGE_SIZE"), 12),
		ToastDuration:  parseDuration(v.GetString("TOAST_DURATION"), 3*time.Second),
		APITimeout:     parseDuration(v.GetString("API_TIMEOUT"), 30*time.Second),
		TracingEnabled: v.GetBool("TRACING_ENABLED"),
		AllowedUsers:   parseAllowed(v.GetString("ALLOWED_USERS")),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "autobot_console.db"
	}

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:8080"
	}

	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}

	loc, err := time.LoadLocation(strings.TrimSpace(v.GetString("TIMEZONE")))
	if err != nil {
		log.Printf("[warn] unknown TIMEZONE, using Local: %v", err)
		loc = time.Local
	}
	cfg.Location = loc

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	return cfg, nil
}

// Allowed reports whether the Telegram user may operate the console.
func (c Config) Allowed(telegramID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	return c.AllowedUsers[telegramID]
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

func parsePositive(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	// Bare numbers are milliseconds.
	if ms, err := strconv.Atoi(raw); err == nil {
		if ms < 0 {
			return fallback
		}
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func parseAllowed(raw string) map[int64]bool {
	allowed := make(map[int64]bool)
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		allowed[id] = true
	}
	return allowed
}
