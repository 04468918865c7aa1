// Package config loads the service configuration from YAML with
// environment overrides on top. Missing files fall back to defaults so a
// bare `motofrete serve` works against local SQLite.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all motofrete configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// HTTP server
	Server ServerConfig `yaml:"server"`

	// Storage
	Database DatabaseConfig `yaml:"database"`

	// Operator/courier authentication
	Auth AuthConfig `yaml:"auth"`

	// External driving-directions provider
	Routing RoutingConfig `yaml:"routing"`

	// Address → coordinates collaborator
	Geocode GeocodeConfig `yaml:"geocode"`

	// Optional lifecycle event stream
	Kafka KafkaConfig `yaml:"kafka"`

	// Dispatch tuning
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Demand predictor
	Predictor PredictorConfig `yaml:"predictor"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

// DatabaseConfig configures storage. URL selects Postgres when set to a
// postgres:// DSN; otherwise Path names a local SQLite file.
type DatabaseConfig struct {
	URL  string `yaml:"url"`
	Path string `yaml:"path"`
}

// AuthConfig configures token issuance.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl"`
}

// RoutingConfig configures the directions provider.
type RoutingConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// GeocodeConfig configures the geocoding collaborator and its cache.
type GeocodeConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`

	// Appended to free-text addresses that omit them.
	City    string `yaml:"city"`
	State   string `yaml:"state"`
	Country string `yaml:"country"`

	// Optional shared cache; in-process map when empty.
	RedisURL string `yaml:"redis_url"`
}

// KafkaConfig configures the optional event publisher.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// DispatchConfig configures dispatcher behavior shared by all tenants.
type DispatchConfig struct {
	// Fallback base point for tenants registered without coordinates.
	DefaultBaseLat float64 `yaml:"default_base_lat"`
	DefaultBaseLng float64 `yaml:"default_base_lng"`

	// Concurrent driving-distance lookups per run.
	DistanceWorkers int `yaml:"distance_workers"`
}

// PredictorConfig configures the demand predictor.
type PredictorConfig struct {
	// Cron expression for the scheduled training pass; empty disables it.
	RefreshCron string `yaml:"refresh_cron"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "motofrete",
		Version: "1.2.0",

		Server: ServerConfig{
			Port: 8000,
			Mode: "release",
		},

		Database: DatabaseConfig{
			Path: "data/motofrete.db",
		},

		Auth: AuthConfig{
			TokenTTL: "72h",
		},

		Routing: RoutingConfig{
			BaseURL: "https://maps.googleapis.com/maps/api/directions/json",
			Timeout: "10s",
		},

		Geocode: GeocodeConfig{
			BaseURL: "https://maps.googleapis.com/maps/api/geocode/json",
			Timeout: "10s",
			City:    "Ribeirão Preto",
			State:   "SP",
			Country: "Brasil",
		},

		Kafka: KafkaConfig{
			Topic: "motofrete.events",
		},

		Dispatch: DispatchConfig{
			DefaultBaseLat:  -21.2020,
			DefaultBaseLng:  -47.8130,
			DistanceWorkers: 4,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		c.Server.Mode = mode
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Database.URL = url
	}
	if path := os.Getenv("MOTOFRETE_DB"); path != "" {
		c.Database.Path = path
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}

	// One Google key serves both maps products unless split explicitly.
	if key := os.Getenv("GOOGLE_MAPS_API_KEY"); key != "" {
		c.Routing.APIKey = key
		c.Geocode.APIKey = key
	}
	if key := os.Getenv("ROUTING_API_KEY"); key != "" {
		c.Routing.APIKey = key
	}
	if key := os.Getenv("GEOCODE_API_KEY"); key != "" {
		c.Geocode.APIKey = key
	}

	if url := os.Getenv("REDIS_URL"); url != "" {
		c.Geocode.RedisURL = url
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitAndTrim(brokers)
	}
	if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
		c.Kafka.Topic = topic
	}

	if lat := os.Getenv("DEFAULT_BASE_LAT"); lat != "" {
		if v, err := strconv.ParseFloat(lat, 64); err == nil {
			c.Dispatch.DefaultBaseLat = v
		}
	}
	if lng := os.Getenv("DEFAULT_BASE_LNG"); lng != "" {
		if v, err := strconv.ParseFloat(lng, 64); err == nil {
			c.Dispatch.DefaultBaseLng = v
		}
	}

	if cron := os.Getenv("PATTERN_REFRESH_CRON"); cron != "" {
		c.Predictor.RefreshCron = cron
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// DatabaseDSN resolves the effective storage target: driver name plus DSN.
// A postgres:// or postgresql:// URL selects lib/pq; anything else is a
// SQLite path.
func (c *Config) DatabaseDSN() (driver, dsn string) {
	url := strings.TrimSpace(c.Database.URL)
	if url != "" {
		if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
			return "postgres", url
		}
		return "sqlite3", url
	}
	return "sqlite3", c.Database.Path
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
