// Package config loads backtester configuration from an optional JSON
// file with environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the backtester.
type Config struct {
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Data     DataConfig     `json:"data"`
	Service  ServiceConfig  `json:"service"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// ConnString builds a PostgreSQL connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DB       int    `json:"db"`
	Password string `json:"password"`
}

// Addr returns host:port for Redis.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// DataConfig holds market data source parameters.
type DataConfig struct {
	BaseURL  string `json:"base_url"`
	CacheDir string `json:"cache_dir"`
}

// ServiceConfig holds operational parameters.
type ServiceConfig struct {
	LogLevel       string  `json:"log_level"`
	ListenAddr     string  `json:"listen_addr"`
	Workers        int     `json:"workers"`
	InitialCapital float64 `json:"initial_capital"`
}

// Load reads config from a JSON file, then overrides with environment variables.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
			// File not found is fine, env vars alone can configure everything.
		} else {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	overrideFromEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host: "localhost",
			Port: 5432,
			Name: "algomatic",
			User: "algomatic",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Data: DataConfig{
			BaseURL:  "http://localhost:8000",
			CacheDir: "data/bars",
		},
		Service: ServiceConfig{
			LogLevel:       "info",
			ListenAddr:     ":8090",
			Workers:        0, // 0 means one worker per CPU
			InitialCapital: 10_000,
		},
	}
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DB_ENABLED"); v != "" {
		cfg.Database.Enabled = parseBool(v)
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = p
		}
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}

	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v)
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = p
		}
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = d
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("DATA_BASE_URL"); v != "" {
		cfg.Data.BaseURL = v
	}
	if v := os.Getenv("DATA_CACHE_DIR"); v != "" {
		cfg.Data.CacheDir = v
	}

	if v := os.Getenv("SERVICE_LOG_LEVEL"); v != "" {
		cfg.Service.LogLevel = v
	}
	if v := os.Getenv("SERVICE_LISTEN_ADDR"); v != "" {
		cfg.Service.ListenAddr = v
	}
	if v := os.Getenv("SERVICE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Service.Workers = n
		}
	}
	if v := os.Getenv("SERVICE_INITIAL_CAPITAL"); v != "" {
		if c, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Service.InitialCapital = c
		}
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func validate(cfg *Config) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", cfg.Service.LogLevel)
	}

	if cfg.Service.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", cfg.Service.Workers)
	}

	if cfg.Service.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive, got %g", cfg.Service.InitialCapital)
	}

	if cfg.Data.BaseURL == "" {
		return fmt.Errorf("data base_url must not be empty")
	}

	return nil
}
