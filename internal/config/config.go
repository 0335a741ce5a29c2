// Package config loads and validates service configuration from the
// environment, optionally overlaid with a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults and bounds for the arrival search.
const (
	DefaultRadiusMeters = 300
	MinRadiusMeters     = 50
	MaxRadiusMeters     = 1000

	DefaultMaxResults = 5
	MinMaxResults     = 1
	MaxMaxResults     = 20

	DefaultPollInterval = 60 * time.Second
)

// Config holds the full service configuration. The EMT credentials are the
// only hard requirement; everything else has a workable default.
type Config struct {
	// EMT holds the Mobility Labs API credentials and endpoint.
	EMT EMTConfig `yaml:"emt"`

	// Home is the reference location for nearby searches. Optional: when
	// unset, location-relative operations report that no location is
	// configured instead of failing.
	Home *Location `yaml:"home"`

	// RadiusMeters is the stop search radius around the home location.
	RadiusMeters int `yaml:"radius_meters" validate:"min=50,max=1000"`

	// MaxResults caps the merged arrival list.
	MaxResults int `yaml:"max_results" validate:"min=1,max=20"`

	// ExtraStops are stop IDs queried in addition to the radius search.
	ExtraStops []string `yaml:"extra_stops"`

	// PollInterval is the worker's polling cadence.
	PollInterval time.Duration `yaml:"poll_interval" validate:"min=1s"`

	// APIKey guards the public endpoints. Empty disables API-key auth,
	// which is only sensible for local development.
	APIKey string `yaml:"api_key"`

	// JWTSigningKey signs the bearer tokens issued for API keys.
	JWTSigningKey string `yaml:"jwt_signing_key"`
}

// EMTConfig holds Mobility Labs API access settings.
type EMTConfig struct {
	// Email is the Mobility Labs account email.
	Email string `yaml:"email" validate:"required,email"`

	// Password is the Mobility Labs account password.
	Password string `yaml:"password" validate:"required"`

	// BaseURL overrides the production API endpoint, mainly for tests.
	BaseURL string `yaml:"base_url"`
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Latitude  float64 `yaml:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `yaml:"longitude" validate:"min=-180,max=180"`
}

// Load builds the configuration from environment variables, overlaid with
// the YAML file named by CERCABUS_CONFIG_FILE when set, and validates it.
func Load() (*Config, error) {
	cfg := fromEnv()

	if path := os.Getenv("CERCABUS_CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	cfg := &Config{
		EMT: EMTConfig{
			Email:    os.Getenv("EMT_EMAIL"),
			Password: os.Getenv("EMT_PASSWORD"),
			BaseURL:  os.Getenv("EMT_BASE_URL"),
		},
		APIKey:        os.Getenv("API_KEY"),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
	}

	if v, err := strconv.Atoi(os.Getenv("SEARCH_RADIUS_METERS")); err == nil {
		cfg.RadiusMeters = v
	}
	if v, err := strconv.Atoi(os.Getenv("MAX_RESULTS")); err == nil {
		cfg.MaxResults = v
	}
	if v, err := time.ParseDuration(os.Getenv("POLL_INTERVAL")); err == nil {
		cfg.PollInterval = v
	}
	if raw := os.Getenv("EXTRA_STOPS"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.ExtraStops = append(cfg.ExtraStops, id)
			}
		}
	}

	lat, latErr := strconv.ParseFloat(os.Getenv("HOME_LATITUDE"), 64)
	lon, lonErr := strconv.ParseFloat(os.Getenv("HOME_LONGITUDE"), 64)
	if latErr == nil && lonErr == nil {
		cfg.Home = &Location{Latitude: lat, Longitude: lon}
	}

	return cfg
}

// mergeFile overlays YAML values onto the env-derived config. File values
// win over environment values for the keys they set.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.RadiusMeters == 0 {
		c.RadiusMeters = DefaultRadiusMeters
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// Validate checks bounds and required fields. Missing EMT credentials are
// the only startup-fatal condition in practice.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			fe := errs[0]
			return fmt.Errorf("invalid configuration: field %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
