// Package config loads moneta's settings from a YAML file, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Timezone string         `yaml:"timezone"`
	Workbook string         `yaml:"workbook"`
	Browser  BrowserConfig  `yaml:"browser"`
	Run      RunConfig      `yaml:"run"`
	History  HistoryConfig  `yaml:"history"`
	Redis    RedisConfig    `yaml:"redis"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Telegram TelegramConfig `yaml:"telegram"`
	REST     RESTConfig     `yaml:"rest"`
	Log      LogConfig      `yaml:"log"`
}

type BrowserConfig struct {
	GamesURL        string        `yaml:"games_url"`
	Headless        bool          `yaml:"headless"`
	Width           int           `yaml:"width"`
	Height          int           `yaml:"height"`
	PageLoadTimeout time.Duration `yaml:"page_load_timeout"`
	NetworkIdle     time.Duration `yaml:"network_idle"`
	GraphRenderWait time.Duration `yaml:"graph_render_wait"`
}

type RunConfig struct {
	ScreenshotDir string        `yaml:"screenshot_dir"`
	RequestDelay  time.Duration `yaml:"request_delay"`
	Window        time.Duration `yaml:"window"`
	TimePeriod    string        `yaml:"time_period"` // chart tab clicked before capture
	MaxGames      int           `yaml:"max_games"`
	BatchCommit   bool          `yaml:"batch_commit"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
}

type HistoryConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RedisConfig enables the history cache and stream publisher when URL is set
type RedisConfig struct {
	URL        string        `yaml:"url"`
	HistoryTTL time.Duration `yaml:"history_ttl"`
	Publish    bool          `yaml:"publish"`
}

// ArchiveConfig enables the Postgres archive when DSN is set
type ArchiveConfig struct {
	DSN string `yaml:"dsn"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type RESTConfig struct {
	Port string `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Timezone: "America/New_York",
		Workbook: "nba_moneyline.xlsx",
		Browser: BrowserConfig{
			GamesURL:        "https://polymarket.com/sports/nba/games",
			Headless:        true,
			Width:           1920,
			Height:          1080,
			PageLoadTimeout: 60 * time.Second,
			NetworkIdle:     30 * time.Second,
			GraphRenderWait: 3 * time.Second,
		},
		Run: RunConfig{
			ScreenshotDir: "screenshots",
			RequestDelay:  2 * time.Second,
			Window:        6 * time.Hour,
			TimePeriod:    "6H",
			MaxAttempts:   3,
			RetryBackoff:  5 * time.Second,
		},
		History: HistoryConfig{
			Enabled: true,
			BaseURL: "https://clob.polymarket.com",
			Timeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			HistoryTTL: 2 * time.Minute,
		},
		REST: RESTConfig{Port: "8080"},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, then applies .env and environment
// overrides. An empty path or a missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := overrideFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideFromEnv(cfg *Config) error {
	cfg.Workbook = getEnv("MONETA_WORKBOOK", cfg.Workbook)
	cfg.Run.ScreenshotDir = getEnv("MONETA_SCREENSHOTS", cfg.Run.ScreenshotDir)
	cfg.Timezone = getEnv("MONETA_TIMEZONE", cfg.Timezone)
	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Archive.DSN = getEnv("ARCHIVE_DSN", cfg.Archive.DSN)
	cfg.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.Telegram.BotToken)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.REST.Port = getEnv("REST_PORT", cfg.REST.Port)

	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", v, err)
		}
		cfg.Telegram.ChatID = id
	}
	return nil
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
