package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML or TOML configuration file at path. The format
// is chosen by extension: .toml is TOML, anything else is YAML.
// If path does not exist or is empty, it returns an empty Config with no errors.
// If the file is malformed, it returns nil config with a parse error.
// For validation errors, it returns a valid config with invalid entries stripped
// plus errors describing what was removed.
func Load(path string) (*Config, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, []error{fmt.Errorf("failed to read config file: %w", err)}
	}

	return decode(path, data)
}

// decode parses and validates data read from path.
func decode(path string, data []byte) (*Config, []error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return &Config{}, nil
	}

	cfg, err := Parse(data, formatFor(path))
	if err != nil {
		return nil, []error{err}
	}

	return cfg, Validate(cfg)
}

// Format identifies a config file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes data without validating it.
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}
	return &cfg, nil
}

// Validate normalizes cfg in place, stripping invalid entries, and returns one
// error per problem found.
func Validate(cfg *Config) []error {
	var validationErrors []error

	rules, errs := normalizeRules("rules", cfg.Rules)
	cfg.Rules = rules
	validationErrors = append(validationErrors, errs...)

	for name, profileRules := range cfg.Profiles {
		if strings.TrimSpace(name) == "" {
			validationErrors = append(validationErrors, errors.New("profiles: profile name must not be empty"))
			delete(cfg.Profiles, name)
			continue
		}
		valid, errs := normalizeRules("profiles."+name, profileRules)
		validationErrors = append(validationErrors, errs...)
		if len(valid) == 0 {
			validationErrors = append(validationErrors, fmt.Errorf("profiles.%s: no valid rules, profile removed", name))
			delete(cfg.Profiles, name)
			continue
		}
		cfg.Profiles[name] = valid
	}

	validationErrors = append(validationErrors, validateServer(&cfg.Server)...)

	if cfg.Health.Interval != "" {
		d, err := time.ParseDuration(cfg.Health.Interval)
		if err != nil || d < time.Second {
			validationErrors = append(validationErrors, fmt.Errorf("health.interval: must be a duration of at least 1s, got %q", cfg.Health.Interval))
			cfg.Health.Interval = ""
		}
	}
	if cfg.Health.Timeout != "" {
		d, err := time.ParseDuration(cfg.Health.Timeout)
		if err != nil || d <= 0 {
			validationErrors = append(validationErrors, fmt.Errorf("health.timeout: must be a positive duration, got %q", cfg.Health.Timeout))
			cfg.Health.Timeout = ""
		}
	}

	return validationErrors
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: must be between 0 and 65535, got %d", s.Port))
		s.Port = 0
	}

	if s.FrontendURL != "" {
		target, err := NormalizeTarget(s.FrontendURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("server.frontendUrl: %v", err))
			s.FrontendURL = ""
		} else {
			s.FrontendURL = target
		}
	}

	if s.StaticDir != "" && s.FrontendURL != "" {
		errs = append(errs, fmt.Errorf("server: staticDir and frontendUrl are mutually exclusive, ignoring frontendUrl"))
		s.FrontendURL = ""
	}

	if s.RateLimit.Requests < 0 {
		errs = append(errs, fmt.Errorf("server.rateLimit.requests: must not be negative, got %d", s.RateLimit.Requests))
		s.RateLimit.Requests = 0
	}
	if s.RateLimit.Window != "" {
		d, err := time.ParseDuration(s.RateLimit.Window)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("server.rateLimit.window: must be a positive duration, got %q", s.RateLimit.Window))
			s.RateLimit = RateLimitConfig{}
		}
	}

	return errs
}
