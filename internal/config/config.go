package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ideascope/ideascope/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Advisor  AdvisorConfig  `mapstructure:"advisor"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the HTTP API configuration
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SSEHeartbeat    time.Duration `mapstructure:"sse_heartbeat"`
}

// BackendConfig holds the signal backend configuration
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SourcesConfig controls which signal sources are queried
type SourcesConfig struct {
	Enabled []string `mapstructure:"enabled"`
}

// AdvisorConfig holds improvement recommendation configuration
type AdvisorConfig struct {
	TargetScore float64 `mapstructure:"target_score"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	MaxSessions    int           `mapstructure:"max_sessions"`
	DBPath         string        `mapstructure:"db_path"`
	RotateInterval time.Duration `mapstructure:"rotate_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set config file
	v.SetConfigFile(path)

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("IDEASCOPE")
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.sse_heartbeat", "10s")

	// Backend defaults
	v.SetDefault("backend.timeout", "30s")

	// Sources default to every known source
	enabled := make([]string, 0, len(models.AllSources()))
	for _, s := range models.AllSources() {
		enabled = append(enabled, string(s))
	}
	v.SetDefault("sources.enabled", enabled)

	// Advisor defaults
	v.SetDefault("advisor.target_score", 70.0)

	// Telegram defaults
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.max_sessions", 200)
	v.SetDefault("storage.db_path", "")
	v.SetDefault("storage.rotate_interval", "1h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Server config
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Server.ShutdownTimeout < 1*time.Second {
		return fmt.Errorf("server.shutdown_timeout must be at least 1 second")
	}
	if c.Server.SSEHeartbeat < 1*time.Second {
		return fmt.Errorf("server.sse_heartbeat must be at least 1 second")
	}

	// Validate Backend config
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.Timeout < 1*time.Second {
		return fmt.Errorf("backend.timeout must be at least 1 second")
	}

	// Validate Sources config. Only canonical names are accepted here:
	// aliases like "forums" belong to the API surface, not the config file.
	if len(c.Sources.Enabled) == 0 {
		return fmt.Errorf("sources.enabled must contain at least one source")
	}
	seen := make(map[string]bool, len(c.Sources.Enabled))
	for _, name := range c.Sources.Enabled {
		source := models.Source(name)
		if !source.Valid() {
			return fmt.Errorf("sources.enabled contains unknown source %q", name)
		}
		if seen[name] {
			return fmt.Errorf("sources.enabled lists %q more than once", name)
		}
		seen[name] = true
	}

	// Validate Advisor config
	if c.Advisor.TargetScore < 0 || c.Advisor.TargetScore > 100 {
		return fmt.Errorf("advisor.target_score must be between 0 and 100")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.MaxSessions < 1 {
		return fmt.Errorf("storage.max_sessions must be at least 1")
	}
	if c.Storage.RotateInterval < 1*time.Minute {
		return fmt.Errorf("storage.rotate_interval must be at least 1 minute")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// EnabledSources converts the configured source names to their typed form.
// Call after Validate; unknown names are skipped.
func (c *Config) EnabledSources() []models.Source {
	out := make([]models.Source, 0, len(c.Sources.Enabled))
	for _, name := range c.Sources.Enabled {
		source := models.Source(name)
		if source.Valid() {
			out = append(out, source)
		}
	}
	return out
}
