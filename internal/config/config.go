package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting of the negotiation backend.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Server struct {
		Port           int      `mapstructure:"port"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"server"`

	Database struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
		Silent bool   `mapstructure:"silent"`
	} `mapstructure:"database"`

	AI struct {
		Disabled    bool          `mapstructure:"disabled"`
		APIKey      string        `mapstructure:"api_key"`
		Model       string        `mapstructure:"model"`
		BaseURL     string        `mapstructure:"base_url"`
		Temperature float64       `mapstructure:"temperature"`
		MaxTokens   int           `mapstructure:"max_tokens"`
		Timeout     time.Duration `mapstructure:"timeout"`
	} `mapstructure:"ai"`

	Negotiation struct {
		RateLimitWindow      time.Duration `mapstructure:"rate_limit_window"`
		RateLimitMaxAttempts int           `mapstructure:"rate_limit_max_attempts"`
		RoundSource          string        `mapstructure:"round_source"`
		MessageSeed          int64         `mapstructure:"message_seed"`
	} `mapstructure:"negotiation"`
}

// Load reads configuration from an optional YAML file and the environment. With an
// empty path a config.yaml in the working directory or ./config is used if present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	v.SetConfigType("yaml")
	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Server.Port <= 0 {
		return nil, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("server.port", 2000)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/negotiation.db")
	v.SetDefault("database.silent", false)

	v.SetDefault("ai.disabled", false)
	v.SetDefault("ai.model", "gpt-4.1-mini")
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.temperature", 0.2)
	v.SetDefault("ai.max_tokens", 200)
	v.SetDefault("ai.timeout", "5s")

	v.SetDefault("negotiation.rate_limit_window", "60s")
	v.SetDefault("negotiation.rate_limit_max_attempts", 10)
	v.SetDefault("negotiation.round_source", "client")
	v.SetDefault("negotiation.message_seed", 0)
}

var envBindings = map[string]string{
	"log_level":                           "LOG_LEVEL",
	"log_format":                          "LOG_FORMAT",
	"server.port":                         "PORT",
	"server.allowed_origins":              "CORS_ALLOW_ORIGINS",
	"database.driver":                     "DB_DRIVER",
	"database.dsn":                        "DB_DSN",
	"database.silent":                     "DB_SILENT",
	"ai.disabled":                         "DISABLE_AI",
	"ai.api_key":                          "OPENAI_API_KEY",
	"ai.model":                            "OPENAI_MODEL",
	"ai.base_url":                         "OPENAI_BASE_URL",
	"ai.temperature":                      "OPENAI_TEMPERATURE",
	"ai.max_tokens":                       "OPENAI_MAX_TOKENS",
	"ai.timeout":                          "OPENAI_TIMEOUT",
	"negotiation.rate_limit_window":       "RATE_LIMIT_WINDOW",
	"negotiation.rate_limit_max_attempts": "RATE_LIMIT_MAX_ATTEMPTS",
	"negotiation.round_source":            "ROUND_SOURCE",
	"negotiation.message_seed":            "MESSAGE_SEED",
}

func bindEnv(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}
