package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"signal-systemv1/internal/session"
	"signal-systemv1/internal/signal"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	GatewayAddr   string

	// Feed: "redis" subscribes to pub:tick:*, "ws" dials FeedURL, "sim"
	// generates ticks in-process.
	FeedMode string
	FeedURL  string

	// Comma-separated instruments registered at startup. Unknown
	// instruments are still registered on first tick.
	Instruments string
	Timeframe   string

	// Optional YAML file overriding signal.DefaultParams.
	SignalParamsFile string

	// Alert channels; each is enabled when configured.
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string

	// Persist raw ticks to SQLite for backtest replay.
	ArchiveTicks bool

	LogLevel string
	LogFile  string

	// Trading session; histories are reset at each open.
	SessionTZ    string
	SessionOpen  string
	SessionClose string

	// Comma-separated YYYY-MM-DD dates with no session.
	SessionHolidays string

	// Trade weekends too (crypto style markets).
	SessionAllDays bool
}

// Load reads an optional .env file, then configuration from environment
// variables with sensible defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ":9091"),

		FeedMode: getEnv("FEED_MODE", "redis"),
		FeedURL:  getEnv("FEED_URL", "ws://localhost:9001/ws"),

		Instruments: getEnv("INSTRUMENTS", "EURUSD,GBPUSD,USDJPY"),
		Timeframe:   getEnv("TIMEFRAME", "1m"),

		SignalParamsFile: getEnv("SIGNAL_PARAMS_FILE", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		ArchiveTicks:     getEnv("ARCHIVE_TICKS", "true") == "true",

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		SessionTZ:    getEnv("SESSION_TZ", "UTC"),
		SessionOpen:  getEnv("SESSION_OPEN", "00:00"),
		SessionClose: getEnv("SESSION_CLOSE", "23:59"),

		SessionHolidays: getEnv("SESSION_HOLIDAYS", ""),
		SessionAllDays:  getEnv("SESSION_ALL_DAYS", "false") == "true",
	}
}

// ParseInstruments splits Instruments into a de-duplicated list of names.
// A ":PRICE" suffix (starting price for the sim feed) is dropped.
func (c *Config) ParseInstruments() []string {
	var out []string
	seen := make(map[string]bool)
	for _, entry := range splitList(c.Instruments) {
		name, _, _ := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Location resolves SessionTZ, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SessionTZ)
	if err != nil {
		log.Printf("[config] unknown SESSION_TZ %q, using UTC: %v", c.SessionTZ, err)
		return time.UTC
	}
	return loc
}

// Calendar builds the trading session calendar from the Session* fields.
func (c *Config) Calendar() (*session.Calendar, error) {
	cal, err := session.NewCalendar(c.Location(), c.SessionOpen, c.SessionClose, splitList(c.SessionHolidays))
	if err != nil {
		return nil, err
	}
	if c.SessionAllDays {
		cal.AllDays()
	}
	return cal, nil
}

// SignalParams returns the signal parameters: defaults, overridden by the
// YAML file when one is configured, with Timeframe taken from the env.
func (c *Config) SignalParams() (signal.Params, error) {
	p := signal.DefaultParams()
	if c.SignalParamsFile != "" {
		var err error
		if p, err = LoadParams(c.SignalParamsFile); err != nil {
			return p, err
		}
	}
	if c.Timeframe != "" {
		p.Timeframe = c.Timeframe
	}
	return p, p.Validate()
}

// LoadParams reads signal parameters from a YAML file. Keys missing from the
// file keep their default values. The result is validated.
func LoadParams(path string) (signal.Params, error) {
	p := signal.DefaultParams()

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read params file: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse params file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("params file %s: %w", path, err)
	}
	return p, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
