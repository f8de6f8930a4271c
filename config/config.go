// Package config loads service configuration from an optional YAML file
// with environment variable overrides. Environment wins over file, file
// wins over defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces the override variables (COMMANDCENTER_REGION, ...).
const EnvPrefix = "COMMANDCENTER_"

// Config is the full service configuration.
type Config struct {
	// Mode selects runtime behavior: dev tolerates missing settings with
	// defaults, prod fails closed on anything invalid.
	Mode string `yaml:"mode" validate:"oneof=dev prod"`
	// Provider selects the telemetry backend: live AWS or the canned
	// demo fixture.
	Provider string `yaml:"provider" validate:"oneof=aws fixture"`

	Region   string `yaml:"region" validate:"required"`
	RoleName string `yaml:"role_name" validate:"required"`

	MaxRetries     int           `yaml:"max_retries" validate:"min=1,max=10"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" validate:"min=0"`

	CacheTTL       time.Duration `yaml:"cache_ttl" validate:"min=0"`
	CostWindowDays int           `yaml:"cost_window_days" validate:"min=1,max=365"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" validate:"min=1ms"`
	ScanWorkers    int           `yaml:"scan_workers" validate:"min=1,max=64"`

	HTTPAddr string `yaml:"http_addr" validate:"required,hostname_port"`
	LogLevel string `yaml:"log_level" validate:"oneof=debug info"`
}

// Default returns the dev-mode defaults.
func Default() Config {
	return Config{
		Mode:           "dev",
		Provider:       "aws",
		Region:         "us-east-1",
		RoleName:       "OrganizationAccountAccessRole",
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		CacheTTL:       5 * time.Minute,
		CostWindowDays: 30,
		ScanTimeout:    15 * time.Second,
		ScanWorkers:    4,
		HTTPAddr:       ":8080",
		LogLevel:       "info",
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// if non-empty, then environment overrides, and validates the result. In
// prod mode the fixture provider is rejected: demo data must never back a
// production deployment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Mode == "prod" && c.Provider == "fixture" {
		return fmt.Errorf("invalid configuration: fixture provider is not allowed in prod mode")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	str("MODE", &cfg.Mode)
	str("PROVIDER", &cfg.Provider)
	str("REGION", &cfg.Region)
	str("ROLE_NAME", &cfg.RoleName)
	str("HTTP_ADDR", &cfg.HTTPAddr)
	str("LOG_LEVEL", &cfg.LogLevel)

	ints := map[string]*int{
		"MAX_RETRIES":      &cfg.MaxRetries,
		"COST_WINDOW_DAYS": &cfg.CostWindowDays,
		"SCAN_WORKERS":     &cfg.ScanWorkers,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"RETRY_BASE_DELAY": &cfg.RetryBaseDelay,
		"CACHE_TTL":        &cfg.CacheTTL,
		"SCAN_TIMEOUT":     &cfg.ScanTimeout,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}
	return nil
}
