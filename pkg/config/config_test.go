package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Server.TLSEnabled {
		t.Error("expected TLS disabled by default")
	}

	if cfg.Database.Port != 5432 {
		t.Errorf("expected default postgres port 5432, got %d", cfg.Database.Port)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected max open conns 25, got %d", cfg.Database.MaxOpenConns)
	}

	if cfg.LiveState.StalenessThresholdSeconds != 300 {
		t.Errorf("expected staleness threshold 300s, got %d", cfg.LiveState.StalenessThresholdSeconds)
	}
	if cfg.LiveState.GraceWindowSeconds != 30 {
		t.Errorf("expected grace window 30s, got %d", cfg.LiveState.GraceWindowSeconds)
	}
	if cfg.LiveState.StalenessThreshold().Seconds() != 300 {
		t.Errorf("expected StalenessThreshold() to convert to 300s, got %v", cfg.LiveState.StalenessThreshold())
	}

	if cfg.Ingestion.Workers != 4 || cfg.Ingestion.BatchSize != 100 {
		t.Errorf("expected 4 workers / batch 100, got %+v", cfg.Ingestion)
	}

	if !cfg.Scanner.Enabled || cfg.Scanner.IntervalSeconds != 1 {
		t.Errorf("expected scanner enabled at 1s interval, got %+v", cfg.Scanner)
	}

	freeNet, ok := cfg.Providers["free-network"]
	if !ok || !freeNet.Enabled {
		t.Errorf("expected free-network provider enabled by default, got %+v", cfg.Providers)
	}
	aero, ok := cfg.Providers["aero-api"]
	if !ok || aero.Enabled {
		t.Errorf("expected aero-api provider disabled by default, got %+v", cfg.Providers)
	}

	if cfg.Webhooks.DefaultRateLimitPerMinute != 60 {
		t.Errorf("expected default webhook rate limit 60/min, got %d", cfg.Webhooks.DefaultRateLimitPerMinute)
	}
	if cfg.Webhooks.BreakerThreshold != 5 || cfg.Webhooks.BreakerResetWindowSeconds != 300 {
		t.Errorf("expected breaker defaults threshold=5 window=300s, got %+v", cfg.Webhooks)
	}

	if cfg.RecentContactThresholdSeconds != 1800 {
		t.Errorf("expected recent contact threshold 1800s, got %d", cfg.RecentContactThresholdSeconds)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("expected no error for non-existent file, got: %v", err)
	}
	if cfg == nil || cfg.Server.Port != "8080" {
		t.Error("expected default config for non-existent file")
	}
}

func TestLoadValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.json")

	testConfig := DefaultConfig()
	testConfig.Server.Port = "9090"
	testConfig.Server.Host = "127.0.0.1"
	testConfig.Database.Host = "db.example.com"
	testConfig.Providers["free-network"] = ProviderConfig{Enabled: true, BaseURL: "https://test.api", RateLimitPerMin: 10}

	data, err := json.MarshalIndent(testConfig, "", "  ")
	if err != nil {
		t.Fatalf("marshal test config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected db.example.com, got %s", cfg.Database.Host)
	}
	if cfg.Providers["free-network"].BaseURL != "https://test.api" {
		t.Errorf("expected overridden provider base URL, got %+v", cfg.Providers["free-network"])
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.json")

	if err := os.WriteFile(configPath, []byte("{ invalid json }"), 0644); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("expected error for invalid JSON, got nil")
	}
}

func TestSaveConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "saved-config.json")

	cfg := DefaultConfig()
	cfg.Server.Port = "9999"

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("save config: %v", err)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("load saved config: %v", err)
	}
	if loaded.Server.Port != "9999" {
		t.Errorf("expected port 9999, got %s", loaded.Server.Port)
	}
}

func TestSaveConfigCreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "dir", "config.json")

	cfg := DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("save config with nested directory: %v", err)
	}

	dir := filepath.Dir(configPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Error("directory was not created")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	os.Setenv("AIRCRAFTDATA_PORT", "7777")
	os.Setenv("AIRCRAFTDATA_DB_PASSWORD", "env-password")
	os.Setenv("AIRCRAFTDATA_REDIS_ADDR", "redis.internal:6380")
	os.Setenv("AIRCRAFTDATA_JWT_SECRET", "env-jwt-secret")
	os.Setenv("AIRCRAFTDATA_PROVIDER_FREE_NETWORK_API_KEY", "env-free-key")
	defer func() {
		os.Unsetenv("AIRCRAFTDATA_PORT")
		os.Unsetenv("AIRCRAFTDATA_DB_PASSWORD")
		os.Unsetenv("AIRCRAFTDATA_REDIS_ADDR")
		os.Unsetenv("AIRCRAFTDATA_JWT_SECRET")
		os.Unsetenv("AIRCRAFTDATA_PROVIDER_FREE_NETWORK_API_KEY")
	}()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")
	testCfg := DefaultConfig()
	testCfg.Server.Port = "8080"
	testCfg.Database.Password = "original-password"

	data, _ := json.Marshal(testCfg)
	os.WriteFile(configPath, data, 0644)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.Port != "7777" {
		t.Errorf("expected port 7777 from env, got %s", cfg.Server.Port)
	}
	if cfg.Database.Password != "env-password" {
		t.Errorf("expected env-password from env, got %s", cfg.Database.Password)
	}
	if cfg.Queue.Addr != "redis.internal:6380" {
		t.Errorf("expected redis addr from env, got %s", cfg.Queue.Addr)
	}
	if cfg.Auth.JWTSecret != "env-jwt-secret" {
		t.Errorf("expected JWT secret from env, got %s", cfg.Auth.JWTSecret)
	}
	if cfg.Providers["free-network"].APIKey != "env-free-key" {
		t.Errorf("expected free-network API key from env, got %+v", cfg.Providers["free-network"])
	}
}

func TestConfigRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "roundtrip.json")

	original := DefaultConfig()
	original.Server.Port = "3000"
	original.Server.TLSEnabled = true
	original.RecentContactThresholdSeconds = 900

	if err := original.Save(configPath); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Server.Port != original.Server.Port {
		t.Error("port not preserved in round trip")
	}
	if loaded.Server.TLSEnabled != original.Server.TLSEnabled {
		t.Error("TLS setting not preserved in round trip")
	}
	if loaded.RecentContactThresholdSeconds != original.RecentContactThresholdSeconds {
		t.Error("recent contact threshold not preserved in round trip")
	}
}
