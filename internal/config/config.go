// Package config loads and validates the streaming service's configuration:
// an optional .env file read by github.com/joho/godotenv, then bound onto a
// typed struct by github.com/kelseyhightower/envconfig, matching how the
// sibling bot in this family boots.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the full set of options spec.md §3 recognizes, plus the
// identities and ambient settings a deployment needs.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"production"`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`
	BaseURL     string `envconfig:"BASE_URL" required:"true"`
	PlayerURL   string `envconfig:"PLAYER_BASE_URL"`

	// Telegram identities. PrimaryBotToken authenticates the first
	// identity; AdditionalBotTokens (comma-separated) authenticate the
	// rest, per spec.md's additional_client_identities.
	APIID                int      `envconfig:"TG_API_ID" required:"true"`
	APIHash              string   `envconfig:"TG_API_HASH" required:"true"`
	PrimaryBotToken      string   `envconfig:"TG_BOT_TOKEN" required:"true"`
	AdditionalBotTokens  []string `envconfig:"TG_ADDITIONAL_BOT_TOKENS"`
	MaxConcurrentPerUser int      `envconfig:"MAX_CONCURRENT_STREAMS_PER_IDENTITY" default:"8"`

	ChunkSizeBytes     int64 `envconfig:"CHUNK_SIZE_BYTES" default:"1048576"`
	LinkExpirySeconds  int64 `envconfig:"LINK_EXPIRY_SECONDS" default:"0"`
	BandwidthCeiling   int64 `envconfig:"MONTHLY_BANDWIDTH_CEILING_BYTES" default:"0"`
	ShortenThreshold   int64 `envconfig:"SHORTEN_THRESHOLD_BYTES" default:"0"`
	LocatorCacheSize   int   `envconfig:"LOCATOR_CACHE_MAX_ENTRIES" default:"1000"`
	NegativeCacheSecs  int64 `envconfig:"LOCATOR_NEGATIVE_CACHE_SECONDS" default:"60"`
	StaleStreamMaxAge  int64 `envconfig:"STALE_STREAM_MAX_AGE_SECONDS" default:"14400"`
	CleanupIntervalSec int64 `envconfig:"STREAM_CLEANUP_INTERVAL_SECONDS" default:"600"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_REQUESTS_PER_SECOND" default:"5"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"10"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`

	LedgerDBPath string `envconfig:"LEDGER_DB_PATH" default:"bandwidth.db"`
	FlushInterval int64  `envconfig:"LEDGER_FLUSH_INTERVAL_SECONDS" default:"30"`

	LogFilePath   string `envconfig:"LOG_FILE_PATH" default:"logs/fsb.log"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"100"`
	LogMaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"28"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"7"`
}

// Load reads an optional .env file (missing is not an error) and binds
// environment variables onto a Config, then validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants envconfig itself cannot express.
func (c *Config) Validate() error {
	if c.ChunkSizeBytes <= 0 || c.ChunkSizeBytes&(c.ChunkSizeBytes-1) != 0 {
		return fmt.Errorf("config: chunk size %d must be a positive power of two", c.ChunkSizeBytes)
	}
	if c.MaxConcurrentPerUser <= 0 {
		return fmt.Errorf("config: max concurrent streams per identity must be positive")
	}
	if c.LocatorCacheSize <= 0 {
		return fmt.Errorf("config: locator cache size must be positive")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("config: base URL must not be empty")
	}
	return nil
}

// BotTokens returns the full ordered identity token list: primary first,
// then additional identities in configured order.
func (c *Config) BotTokens() []string {
	return append([]string{c.PrimaryBotToken}, c.AdditionalBotTokens...)
}
