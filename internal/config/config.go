// Package config loads the server configuration from an optional YAML file
// and environment variables. Environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/lightquark/maptracker/internal/permission"
)

// Provider kinds.
const (
	ProviderPush      = "push"
	ProviderSimulator = "simulator"
)

// Defaults for every optional setting.
const (
	DefaultPort            = ":8080"
	DefaultDBPath          = "./data/tracks/map-tracker.db"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultProvider        = ProviderPush
	DefaultTargetAddress   = "tracking"
	DefaultRateLimit       = 120
	DefaultRateWindow      = time.Minute
	DefaultSimulatorLat    = 59.399750
	DefaultSimulatorLon    = 24.659275
	DefaultSimulatorSpeed  = 1.4
	DefaultShutdownTimeout = 10 * time.Second
)

// Configuration validation errors.
var (
	ErrInvalidProvider  = errors.New("PROVIDER must be push or simulator")
	ErrInvalidLogLevel  = errors.New("LOG_LEVEL must be debug, info, warn or error")
	ErrInvalidLogFormat = errors.New("LOG_FORMAT must be text or json")
	ErrInvalidRateLimit = errors.New("RATE_LIMIT must be a non-negative integer")
	ErrInvalidGrants    = errors.New("GRANTS must list known capabilities")
)

// Config holds all configuration values for the server.
type Config struct {
	Port      string `koanf:"port"`
	DBPath    string `koanf:"db_path"`
	JWTSecret string `koanf:"jwt_secret"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	// Provider selects where samples come from: "push" or "simulator"
	Provider      string `koanf:"provider"`
	TargetAddress string `koanf:"target_address"`
	// Grants is the comma separated list of initially granted capabilities
	Grants string `koanf:"grants"`

	SimulatorLat   float64 `koanf:"simulator_lat"`
	SimulatorLon   float64 `koanf:"simulator_lon"`
	SimulatorSpeed float64 `koanf:"simulator_speed"`

	// RateLimit is the number of requests per RateWindow per client; 0 disables it
	RateLimit  int           `koanf:"rate_limit"`
	RateWindow time.Duration `koanf:"rate_window"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Load reads configuration from an optional YAML file and the environment.
// It returns the config and the list of validation errors (empty if valid).
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	var errs []error

	rateLimit, err := getEnvIntOrDefault("RATE_LIMIT", k, "rate_limit", DefaultRateLimit)
	if err != nil || rateLimit < 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}

	cfg := &Config{
		Port:            getEnvOrDefault("PORT", k, "port", DefaultPort),
		DBPath:          getEnvOrDefault("DB_PATH", k, "db_path", DefaultDBPath),
		JWTSecret:       getEnvOrDefault("JWT_SECRET", k, "jwt_secret", ""),
		LogLevel:        strings.ToLower(getEnvOrDefault("LOG_LEVEL", k, "log_level", DefaultLogLevel)),
		LogFormat:       strings.ToLower(getEnvOrDefault("LOG_FORMAT", k, "log_format", DefaultLogFormat)),
		Provider:        strings.ToLower(getEnvOrDefault("PROVIDER", k, "provider", DefaultProvider)),
		TargetAddress:   getEnvOrDefault("TARGET_ADDRESS", k, "target_address", DefaultTargetAddress),
		Grants:          getEnvOrDefault("GRANTS", k, "grants", ""),
		SimulatorLat:    floatOrDefault(k, "simulator_lat", DefaultSimulatorLat),
		SimulatorLon:    floatOrDefault(k, "simulator_lon", DefaultSimulatorLon),
		SimulatorSpeed:  floatOrDefault(k, "simulator_speed", DefaultSimulatorSpeed),
		RateLimit:       rateLimit,
		RateWindow:      durationOrDefault(k, "rate_window", DefaultRateWindow),
		ShutdownTimeout: durationOrDefault(k, "shutdown_timeout", DefaultShutdownTimeout),
	}

	// PORT may be given as a bare number
	if _, err := strconv.Atoi(cfg.Port); err == nil {
		cfg.Port = ":" + cfg.Port
	}

	errs = append(errs, cfg.Validate()...)
	return cfg, errs
}

// Validate checks enumerated settings
func (c *Config) Validate() []error {
	var errs []error

	switch c.Provider {
	case ProviderPush, ProviderSimulator:
	default:
		errs = append(errs, ErrInvalidProvider)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ErrInvalidLogLevel)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, ErrInvalidLogFormat)
	}

	if _, err := permission.ParseCapabilities(c.Grants); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidGrants, err))
	}

	return errs
}

func getEnvOrDefault(envKey string, k *koanf.Koanf, koanfKey, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if val := k.String(koanfKey); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return defaultVal, fmt.Errorf("%s: %w", envKey, err)
		}
		return n, nil
	}
	if k.Exists(koanfKey) {
		return k.Int(koanfKey), nil
	}
	return defaultVal, nil
}

func floatOrDefault(k *koanf.Koanf, key string, defaultVal float64) float64 {
	if k.Exists(key) {
		return k.Float64(key)
	}
	return defaultVal
}

func durationOrDefault(k *koanf.Koanf, key string, defaultVal time.Duration) time.Duration {
	if k.Exists(key) {
		if d := k.Duration(key); d > 0 {
			return d
		}
	}
	return defaultVal
}
