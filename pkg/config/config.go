// Package config loads and saves the application's configuration,
// grounded on the teacher's JSON-file-plus-env-override Config shape
// (Load, Save, applyEnvironmentOverrides) generalized from telescope/ADS-B
// client settings to this module's live-state/queue/ingestion/provider/
// webhook surface.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	LiveState  LiveStateConfig  `json:"live_state"`
	Queue      QueueConfig      `json:"queue"`
	Ingestion  IngestionConfig  `json:"ingestion"`
	Scanner    ScannerConfig    `json:"scanner"`
	Providers  map[string]ProviderConfig `json:"providers"`
	Webhooks   WebhooksConfig   `json:"webhooks"`
	Auth       AuthConfig       `json:"auth"`

	// RecentContactThresholdSeconds bounds how old a cached/stored
	// position may be before the Bounds Query Planner leaves it out of its
	// results; values above 30 minutes are capped at 30 minutes.
	RecentContactThresholdSeconds int `json:"recent_contact_threshold_seconds"`
}

// ServerConfig contains HTTP+WebSocket server configuration for
// cmd/aircraft-apid.
type ServerConfig struct {
	Port        string `json:"port"`
	Host        string `json:"host"`
	TLSEnabled  bool   `json:"tls_enabled"`
	TLSCertFile string `json:"tls_cert_file"`
	TLSKeyFile  string `json:"tls_key_file"`
}

// DatabaseConfig contains Priority Store connection settings.
type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Database     string `json:"database"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	SSLMode      string `json:"ssl_mode"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// LiveStateConfig tunes the Live-State Cache (C6).
type LiveStateConfig struct {
	// TTLSeconds is how long an entry survives without a refresh before
	// the cache evicts it.
	TTLSeconds int `json:"ttl_seconds"`
	// StalenessThresholdSeconds bounds how old an existing row must be
	// before a lower-priority source may replace it (upsert rule 4).
	StalenessThresholdSeconds int `json:"staleness_threshold_seconds"`
	// GraceWindowSeconds additionally allows a lower-priority replace
	// when its last_contact is newer than the existing row's by more.
	GraceWindowSeconds int `json:"grace_window_seconds"`
}

// QueueConfig points at the Redis instance backing the three-lane queues
// and tunes their mover loop.
type QueueConfig struct {
	Addr              string `json:"addr"`
	Password          string `json:"password"`
	DB                int    `json:"db"`
	MoverIntervalSeconds int `json:"mover_interval_seconds"`
	// HighWaterMark is the ready-lane depth at which producers should
	// shed load (503 on HTTP push, skip CONUS rotations).
	HighWaterMark int `json:"high_water_mark"`
}

// IngestionConfig tunes the Ingestion Worker (C4).
type IngestionConfig struct {
	Workers            int `json:"workers"`
	BatchSize          int `json:"batch_size"`
	PopTimeoutSeconds  int `json:"pop_timeout_seconds"`
	MaxRetries         int `json:"max_retries"`
	BackoffBaseMillis  int `json:"backoff_base_millis"`
	BackoffCapSeconds  int `json:"backoff_cap_seconds"`
}

// ScannerConfig tunes the CONUS Scan Scheduler (C12).
type ScannerConfig struct {
	Enabled          bool    `json:"enabled"`
	IntervalSeconds  float64 `json:"interval_seconds"`
}

// ProviderConfig configures one named ADS-B provider adapter (C1):
// free-network, commercial-network, or aero-api.
type ProviderConfig struct {
	Enabled          bool    `json:"enabled"`
	BaseURL          string  `json:"base_url"`
	APIKey           string  `json:"api_key,omitempty"`
	Username         string  `json:"username,omitempty"`
	Password         string  `json:"password,omitempty"`
	RateLimitPerMin  float64 `json:"rate_limit_per_minute"`
	TimeoutSeconds   int     `json:"timeout_seconds"`
}

// WebhooksConfig tunes the Event Publisher (C9) and Webhook Deliverer
// (C10) defaults applied when a subscription doesn't override them.
type WebhooksConfig struct {
	DefaultRateLimitPerMinute int `json:"default_rate_limit_per_minute"`
	DefaultMaxAttempts        int `json:"default_max_attempts"`
	DefaultBackoffMillis      int `json:"default_backoff_millis"`
	BreakerThreshold          int `json:"breaker_threshold"`
	BreakerResetWindowSeconds int `json:"breaker_reset_window_seconds"`
	QueueHighWaterMark        int `json:"queue_high_water_mark"`
}

// AuthConfig configures operator JWT auth and feeder bearer tokens.
type AuthConfig struct {
	JWTSecret            string `json:"jwt_secret"`
	TokenDurationMinutes int    `json:"token_duration_minutes"`
	BCryptCost           int    `json:"bcrypt_cost"`
}

// Load reads configuration from a JSON file. If the file doesn't exist,
// returns a default configuration.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	return &cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultConfig returns a configuration with the defaults spec.md names
// explicitly (5 min staleness, 30s grace, 100-batch ingestion, etc.).
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "aircraftdata",
			Username:     "aircraftdata",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		LiveState: LiveStateConfig{
			TTLSeconds:                120,
			StalenessThresholdSeconds: 300,
			GraceWindowSeconds:        30,
		},
		Queue: QueueConfig{
			Addr:                 "localhost:6379",
			DB:                   0,
			MoverIntervalSeconds: 1,
			HighWaterMark:        10000,
		},
		Ingestion: IngestionConfig{
			Workers:           4,
			BatchSize:         100,
			PopTimeoutSeconds: 1,
			MaxRetries:        3,
			BackoffBaseMillis: 500,
			BackoffCapSeconds: 30,
		},
		Scanner: ScannerConfig{
			Enabled:         true,
			IntervalSeconds: 1,
		},
		Providers: map[string]ProviderConfig{
			"free-network": {
				Enabled:         true,
				BaseURL:         "https://opensky-network.org/api",
				RateLimitPerMin: 20,
				TimeoutSeconds:  15,
			},
			"commercial-network": {
				Enabled:         false,
				BaseURL:         "https://api.airplanes.live/v2",
				RateLimitPerMin: 20,
				TimeoutSeconds:  15,
			},
			"aero-api": {
				Enabled:         false,
				BaseURL:         "https://aeroapi.flightaware.com/aeroapi",
				RateLimitPerMin: 1,
				TimeoutSeconds:  20,
			},
		},
		Webhooks: WebhooksConfig{
			DefaultRateLimitPerMinute: 60,
			DefaultMaxAttempts:        10,
			DefaultBackoffMillis:      1000,
			BreakerThreshold:          5,
			BreakerResetWindowSeconds: 300,
			QueueHighWaterMark:        10000,
		},
		Auth: AuthConfig{
			TokenDurationMinutes: 1440,
			BCryptCost:           0,
		},
		RecentContactThresholdSeconds: 1800,
	}
}

// StalenessThreshold returns LiveState staleness as a time.Duration.
func (c *LiveStateConfig) StalenessThreshold() time.Duration {
	return time.Duration(c.StalenessThresholdSeconds) * time.Second
}

// GraceWindow returns LiveState grace window as a time.Duration.
func (c *LiveStateConfig) GraceWindow() time.Duration {
	return time.Duration(c.GraceWindowSeconds) * time.Second
}

// applyEnvironmentOverrides applies environment variable overrides,
// keeping secrets out of the config file on disk.
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv("AIRCRAFTDATA_PORT"); port != "" {
		c.Server.Port = port
	}
	if dbPassword := os.Getenv("AIRCRAFTDATA_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if redisAddr := os.Getenv("AIRCRAFTDATA_REDIS_ADDR"); redisAddr != "" {
		c.Queue.Addr = redisAddr
	}
	if redisPassword := os.Getenv("AIRCRAFTDATA_REDIS_PASSWORD"); redisPassword != "" {
		c.Queue.Password = redisPassword
	}
	if jwtSecret := os.Getenv("AIRCRAFTDATA_JWT_SECRET"); jwtSecret != "" {
		c.Auth.JWTSecret = jwtSecret
	}
	for name, p := range c.Providers {
		envName := "AIRCRAFTDATA_PROVIDER_" + envSafe(name) + "_API_KEY"
		if key := os.Getenv(envName); key != "" {
			p.APIKey = key
			c.Providers[name] = p
		}
	}
}

func envSafe(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '-' {
			out[i] = '_'
			continue
		}
		if c >= 'a' && c <= 'z' {
			out[i] = c - 'a' + 'A'
			continue
		}
		out[i] = c
	}
	return string(out)
}
