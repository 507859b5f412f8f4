package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	SourcesPath   string `envconfig:"SOURCES_PATH" default:"sources.json"`
	ArtifactsRoot string `envconfig:"ARTIFACTS_ROOT" default:"artifacts"`
	SiteOutput    string `envconfig:"SITE_OUTPUT" default:"site/index.html"`
	SiteURL       string `envconfig:"SITE_URL" default:""`

	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"20s"`
	RetryAttempts  int           `envconfig:"RETRY_ATTEMPTS" default:"3"`

	// Summarizer provider (Gemini). Empty key means fallback summaries only.
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY" default:""`
	GeminiModel      string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	SummaryCachePath string `envconfig:"SUMMARY_CACHE_PATH" default:".state/summary_cache.json"`
	MaxSummaryCalls  int    `envconfig:"MAX_SUMMARY_CALLS" default:"0"`

	// Feishu notification targets.
	FeishuWebhookURL    string `envconfig:"FEISHU_WEBHOOK_URL" default:""`
	FeishuWebhookSecret string `envconfig:"FEISHU_WEBHOOK_SECRET" default:""`
	FeishuAppID         string `envconfig:"FEISHU_APP_ID" default:""`
	FeishuAppSecret     string `envconfig:"FEISHU_APP_SECRET" default:""`
	FeishuReceiveOpenID string `envconfig:"FEISHU_RECEIVE_OPEN_ID" default:""`

	// Optional Postgres archive; required only by the archive command.
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
	DBMaxConns  int    `envconfig:"AV_DB_MAX_CONNS" default:"4"`

	HTTPHost string `envconfig:"HTTP_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8090"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.SourcesPath) == "" {
		return fmt.Errorf("SOURCES_PATH is required")
	}
	if strings.TrimSpace(c.ArtifactsRoot) == "" {
		return fmt.Errorf("ARTIFACTS_ROOT is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be >= 1")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("AV_DB_MAX_CONNS must be >= 1")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be a valid port")
	}
	return nil
}

// RequireDatabase reports whether a database URL is configured; commands that
// need the archive call this instead of failing every other command at load.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required for this command")
	}
	return nil
}
