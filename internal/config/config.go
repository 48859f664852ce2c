// Package config loads the engine's configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig controls the Postgres connection. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// ValidationConfig tunes the sweep cadence and challenge parameters.
type ValidationConfig struct {
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	AgeThreshold   time.Duration `yaml:"age_threshold"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	ConfirmBaseURL string        `yaml:"confirm_base_url"`
}

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AuthConfig holds the shared JWT secret.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Config is the engine's full configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Validation ValidationConfig `yaml:"validation"`
	Logging    LoggingConfig    `yaml:"logging"`
	Auth       AuthConfig       `yaml:"auth"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			Driver: "postgres",
		},
		Validation: ValidationConfig{
			SweepInterval:  24 * time.Hour,
			AgeThreshold:   7 * 24 * time.Hour,
			TokenTTL:       24 * time.Hour,
			ConfirmBaseURL: "https://hotprop.app",
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

// Load reads CONFIG_PATH (default config/lifecycle.yaml) when it exists and
// applies environment overrides on top.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/lifecycle.yaml"
	}

	cfg := Default()
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.Server.Port <= 0 {
		return nil, fmt.Errorf("server port must be positive")
	}
	if cfg.Validation.TokenTTL <= 0 || cfg.Validation.AgeThreshold <= 0 || cfg.Validation.SweepInterval <= 0 {
		return nil, fmt.Errorf("validation intervals must be positive")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VALIDATION_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Validation.SweepInterval = d
		}
	}
	if v := os.Getenv("VALIDATION_AGE_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Validation.AgeThreshold = d
		}
	}
	if v := os.Getenv("VALIDATION_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Validation.TokenTTL = d
		}
	}
	if v := os.Getenv("CONFIRM_BASE_URL"); v != "" {
		cfg.Validation.ConfirmBaseURL = v
	}
}
