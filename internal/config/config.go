// Package config loads the relay's settings once at process start from
// environment variables, an optional .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultAllowedOrigins are the browser origins the chat UI is served from.
var DefaultAllowedOrigins = []string{
	"https://cerulean-piroshki-e8f994.netlify.app",
	"http://localhost:5173",
	"http://localhost:5174",
}

type Config struct {
	Port             string        `mapstructure:"port"`
	APIKey           string        `mapstructure:"deepseek_api_key"`
	APIKeyParam      string        `mapstructure:"api_key_param"`
	AWSRegion        string        `mapstructure:"aws_region"`
	UpstreamURL      string        `mapstructure:"upstream_url"`
	Model            string        `mapstructure:"model"`
	Temperature      float32       `mapstructure:"temperature"`
	SystemPrompt     string        `mapstructure:"system_prompt"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	AttemptTimeout   time.Duration `mapstructure:"attempt_timeout"`
	TimeoutStatus    int           `mapstructure:"timeout_status"`
	ShutdownGrace    time.Duration `mapstructure:"shutdown_grace"`
	MaxMessageLength int           `mapstructure:"max_message_length"`
	LogLevel         string        `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "3001")
	v.SetDefault("deepseek_api_key", "")
	v.SetDefault("api_key_param", "")
	v.SetDefault("aws_region", "")
	v.SetDefault("upstream_url", "https://api.deepseek.com/v1/chat/completions")
	v.SetDefault("model", "deepseek-chat")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("system_prompt", "You are a helpful assistant.")
	v.SetDefault("allowed_origins", DefaultAllowedOrigins)
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_base_delay", time.Second)
	v.SetDefault("attempt_timeout", 30*time.Second)
	v.SetDefault("timeout_status", 500)
	v.SetDefault("shutdown_grace", 10*time.Second)
	v.SetDefault("max_message_length", 2000)
	v.SetDefault("log_level", "info")
}

// Load reads configuration. configPath may be empty; a missing .env file is
// not an error.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath = strings.TrimSpace(configPath); configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
		slog.Info("using config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.AllowedOrigins = normalizeOrigins(v.GetStringSlice("allowed_origins"))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("config: port must not be empty")
	}
	if strings.TrimSpace(c.APIKey) == "" && strings.TrimSpace(c.APIKeyParam) == "" {
		return errors.New("config: DEEPSEEK_API_KEY or API_KEY_PARAM must be set")
	}
	if strings.TrimSpace(c.UpstreamURL) == "" {
		return errors.New("config: upstream_url must not be empty")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("config: max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("config: retry_base_delay must not be negative, got %s", c.RetryBaseDelay)
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("config: attempt_timeout must be positive, got %s", c.AttemptTimeout)
	}
	if c.TimeoutStatus < 400 || c.TimeoutStatus > 599 {
		return fmt.Errorf("config: timeout_status must be a 4xx or 5xx code, got %d", c.TimeoutStatus)
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("config: shutdown_grace must be positive, got %s", c.ShutdownGrace)
	}
	if c.MaxMessageLength < 1 {
		return fmt.Errorf("config: max_message_length must be at least 1, got %d", c.MaxMessageLength)
	}
	return nil
}

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// normalizeOrigins accepts both list values and a single comma separated
// string, which is how the list arrives from the environment.
func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, origin := range strings.Split(item, ",") {
			origin = strings.TrimRight(strings.TrimSpace(origin), "/")
			if origin != "" {
				out = append(out, origin)
			}
		}
	}
	return out
}
