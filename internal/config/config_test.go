package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"PORT", "DB_PATH", "JWT_SECRET", "LOG_LEVEL", "LOG_FORMAT",
	"PROVIDER", "TARGET_ADDRESS", "GRANTS", "RATE_LIMIT",
}

// clearEnv blanks every variable Load reads; empty counts as unset
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, errs := Load("")
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %q, want %q", cfg.Port, DefaultPort)
	}
	if cfg.DBPath != DefaultDBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, DefaultDBPath)
	}
	if cfg.Provider != ProviderPush {
		t.Errorf("Provider = %q, want %q", cfg.Provider, ProviderPush)
	}
	if cfg.TargetAddress != DefaultTargetAddress {
		t.Errorf("TargetAddress = %q", cfg.TargetAddress)
	}
	if cfg.RateLimit != DefaultRateLimit || cfg.RateWindow != DefaultRateWindow {
		t.Errorf("rate limit = %d per %v", cfg.RateLimit, cfg.RateWindow)
	}
	if cfg.SimulatorLat != DefaultSimulatorLat || cfg.SimulatorLon != DefaultSimulatorLon {
		t.Errorf("simulator origin = %v, %v", cfg.SimulatorLat, cfg.SimulatorLon)
	}
	if cfg.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("PROVIDER", "simulator")
	t.Setenv("GRANTS", "all")
	t.Setenv("RATE_LIMIT", "0")

	cfg, errs := Load("")
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	if cfg.Port != ":9090" {
		t.Errorf("bare port should gain a colon, got %q", cfg.Port)
	}
	if cfg.DBPath != "/tmp/x.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Provider != ProviderSimulator {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.RateLimit != 0 {
		t.Errorf("RateLimit = %d", cfg.RateLimit)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "maptracker.yaml")
	content := `
port: ":7070"
db_path: ./custom.db
provider: simulator
grants: fine_location,coarse_location
simulator_lat: 48.85
simulator_lon: 2.35
simulator_speed: 3
rate_limit: 10
rate_window: 30s
shutdown_timeout: 2s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// environment still wins over the file
	t.Setenv("DB_PATH", "./env.db")

	cfg, errs := Load(path)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	if cfg.Port != ":7070" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.DBPath != "./env.db" {
		t.Errorf("DBPath = %q, want env override", cfg.DBPath)
	}
	if cfg.Provider != ProviderSimulator {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.Grants != "fine_location,coarse_location" {
		t.Errorf("Grants = %q", cfg.Grants)
	}
	if cfg.SimulatorLat != 48.85 || cfg.SimulatorLon != 2.35 || cfg.SimulatorSpeed != 3 {
		t.Errorf("simulator = %v, %v @ %v", cfg.SimulatorLat, cfg.SimulatorLon, cfg.SimulatorSpeed)
	}
	if cfg.RateLimit != 10 || cfg.RateWindow != 30*time.Second {
		t.Errorf("rate limit = %d per %v", cfg.RateLimit, cfg.RateWindow)
	}
	if cfg.ShutdownTimeout != 2*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	_, errs := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr error
	}{
		{"provider", "PROVIDER", "gps", ErrInvalidProvider},
		{"log level", "LOG_LEVEL", "verbose", ErrInvalidLogLevel},
		{"log format", "LOG_FORMAT", "xml", ErrInvalidLogFormat},
		{"rate limit", "RATE_LIMIT", "many", ErrInvalidRateLimit},
		{"negative rate limit", "RATE_LIMIT", "-1", ErrInvalidRateLimit},
		{"grants", "GRANTS", "camera", ErrInvalidGrants},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, errs := Load("")
			found := false
			for _, err := range errs {
				if errors.Is(err, tt.wantErr) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected %v in %v", tt.wantErr, errs)
			}
		})
	}
}
