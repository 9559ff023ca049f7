// Package config provides YAML-based configuration loading for rfqdesk.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level rfqdesk configuration, loaded from config.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Intake    IntakeConfig    `yaml:"intake"`
	Matching  MatchingConfig  `yaml:"matching"`
	Generator GeneratorConfig `yaml:"generator"`
	Telegraph TelegraphConfig `yaml:"telegraph"`
	Webhook   WebhookConfig   `yaml:"webhook"`
}

// DatabaseConfig holds connection settings for the request store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql, postgres or sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"` // sqlite file; ":memory:" for tests
	SSLMode  string `yaml:"sslmode"`
}

// CatalogConfig points at an optional rule catalog override.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// IntakeConfig tunes the request state machine and continuation analysis.
type IntakeConfig struct {
	ClosedWindowHours     int     `yaml:"closed_window_hours"`
	ActivityWindowHours   int     `yaml:"activity_window_hours"`
	ContinuationThreshold float64 `yaml:"continuation_threshold"`
	FailOpen              *bool   `yaml:"fail_open"`
	ReadyThreshold        float64 `yaml:"ready_threshold"`
	AIFieldDetection      bool    `yaml:"ai_field_detection"`
	ReplyFrom             string  `yaml:"reply_from"` // From address on queued email replies
}

// ClosedWindow returns how long a closed request still accepts continuations.
func (c IntakeConfig) ClosedWindow() time.Duration {
	return time.Duration(c.ClosedWindowHours) * time.Hour
}

// ActivityWindow returns how recent a request's activity must be to continue it.
func (c IntakeConfig) ActivityWindow() time.Duration {
	return time.Duration(c.ActivityWindowHours) * time.Hour
}

// FailOpenEnabled reports whether ambiguous messages merge into the candidate.
func (c IntakeConfig) FailOpenEnabled() bool {
	return c.FailOpen == nil || *c.FailOpen
}

// MatchingConfig tunes supplier ranking.
type MatchingConfig struct {
	MinScore    *float64 `yaml:"min_score"`
	Limit       int      `yaml:"limit"`
	SkipOverall bool     `yaml:"skip_overall"` // rank without the overall-score signal
}

// MinScoreValue returns the ranking cutoff. An unset min_score means 30; an
// explicit 0 keeps every match.
func (c MatchingConfig) MinScoreValue() float64 {
	if c.MinScore == nil {
		return 30
	}
	return *c.MinScore
}

// GeneratorConfig configures the optional OpenAI-compatible text generator.
type GeneratorConfig struct {
	Enabled    bool        `yaml:"enabled"`
	Endpoint   string      `yaml:"endpoint"`
	Model      string      `yaml:"model"`
	APIKey     string      `yaml:"api_key"`
	TimeoutSec int         `yaml:"timeout_sec"`
	OAuth      OAuthConfig `yaml:"oauth"`
}

// Timeout returns the per-call generation timeout.
func (c GeneratorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// OAuthConfig holds client-credentials settings; empty TokenURL disables it.
type OAuthConfig struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// TelegraphConfig configures chat adapters, outbox delivery and digests.
type TelegraphConfig struct {
	Platform string        `yaml:"platform"` // slack, discord or empty to disable
	Channel  string        `yaml:"channel"`  // operator channel for digests
	Slack    SlackConfig   `yaml:"slack"`
	Discord  DiscordConfig `yaml:"discord"`
	Outbox   OutboxConfig  `yaml:"outbox"`
	Digest   DigestConfig  `yaml:"digest"`

	// Commands maps a source without a chat adapter (email, webform) to a
	// delivery command. See messaging.DeliverCommand for placeholders.
	Commands map[string]string `yaml:"commands"`
}

// SlackConfig holds Slack Socket Mode credentials.
type SlackConfig struct {
	AppToken string `yaml:"app_token"`
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// OutboxConfig tunes the outbound message dispatcher.
type OutboxConfig struct {
	PollIntervalSec int `yaml:"poll_interval_sec"`
	BatchSize       int `yaml:"batch_size"`
}

// DigestConfig schedules the pending-request digest.
type DigestConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// WebhookConfig configures the HTTP intake server.
type WebhookConfig struct {
	Port int `yaml:"port"`
	// Token, when set, must be sent as "Authorization: Bearer <token>" on
	// every /v1 route.
	Token string `yaml:"token"`
}

// LoadDotEnv loads environment variables from path when the file exists.
// Variables already set in the environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references and unmarshals YAML bytes into a validated
// Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated Config with every default applied, backed by a
// local sqlite file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			c.Database.Path = "rfqdesk.db"
		}
	case "mysql":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
	case "postgres":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	}
	if c.Database.Name == "" {
		c.Database.Name = "rfqdesk"
	}

	if c.Intake.ClosedWindowHours == 0 {
		c.Intake.ClosedWindowHours = 24
	}
	if c.Intake.ActivityWindowHours == 0 {
		c.Intake.ActivityWindowHours = 72
	}
	if c.Intake.ContinuationThreshold == 0 {
		c.Intake.ContinuationThreshold = 0.6
	}
	if c.Intake.ReadyThreshold == 0 {
		c.Intake.ReadyThreshold = 0.8
	}

	if c.Matching.Limit == 0 {
		c.Matching.Limit = 10
	}

	if c.Generator.TimeoutSec == 0 {
		c.Generator.TimeoutSec = 15
	}

	if c.Telegraph.Outbox.PollIntervalSec == 0 {
		c.Telegraph.Outbox.PollIntervalSec = 5
	}
	if c.Telegraph.Outbox.BatchSize == 0 {
		c.Telegraph.Outbox.BatchSize = 20
	}
	if c.Telegraph.Digest.Cron == "" {
		c.Telegraph.Digest.Cron = "0 9 * * 1-5"
	}

	if c.Webhook.Port == 0 {
		c.Webhook.Port = 8085
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not one of mysql, postgres, sqlite", c.Database.Driver))
	}
	if c.Database.Driver != "sqlite" && c.Database.User == "" {
		errs = append(errs, "database.user is required for "+c.Database.Driver)
	}
	if t := c.Intake.ContinuationThreshold; t < 0 || t > 1 {
		errs = append(errs, "intake.continuation_threshold must be within [0,1]")
	}
	if t := c.Intake.ReadyThreshold; t < 0 || t > 1 {
		errs = append(errs, "intake.ready_threshold must be within [0,1]")
	}
	if s := c.Matching.MinScoreValue(); s < 0 || s > 100 {
		errs = append(errs, "matching.min_score must be within [0,100]")
	}
	if c.Matching.Limit < 0 {
		errs = append(errs, "matching.limit must not be negative")
	}
	if c.Generator.Enabled {
		if c.Generator.Endpoint == "" {
			errs = append(errs, "generator.endpoint is required when enabled")
		}
		if c.Generator.Model == "" {
			errs = append(errs, "generator.model is required when enabled")
		}
		if c.Generator.APIKey == "" && c.Generator.OAuth.TokenURL == "" {
			errs = append(errs, "generator.api_key or generator.oauth.token_url is required when enabled")
		}
	}
	switch c.Telegraph.Platform {
	case "":
	case "slack":
		if c.Telegraph.Slack.AppToken == "" || c.Telegraph.Slack.BotToken == "" {
			errs = append(errs, "telegraph.slack.app_token and bot_token are required for slack")
		}
	case "discord":
		if c.Telegraph.Discord.BotToken == "" {
			errs = append(errs, "telegraph.discord.bot_token is required for discord")
		}
	default:
		errs = append(errs, fmt.Sprintf("telegraph.platform %q is not one of slack, discord", c.Telegraph.Platform))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
