package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/stephenolajire/stumart-query/apiclient"
	"github.com/stephenolajire/stumart-query/cache"
	"github.com/stephenolajire/stumart-query/coordinator"
	"github.com/stephenolajire/stumart-query/queries"
	"github.com/stephenolajire/stumart-query/realtime"
	"github.com/stephenolajire/stumart-query/session"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "STUMART"

type Config struct {
	API         apiclient.Config   `yaml:"api"`
	Cache       cache.Config       `yaml:"cache"`
	Coordinator coordinator.Config `yaml:"coordinator"`
	Queries     queries.Config     `yaml:"queries"`
	Realtime    realtime.Config    `yaml:"realtime"`
	Ops         Ops                `yaml:"ops"`
	Logging     Logging            `yaml:"logging"`
}

// Ops configures the operational HTTP server
type Ops struct {
	Port string `yaml:"port"`
}

// Logging configures the zap logger
type Logging struct {
	Production bool `yaml:"production"`
}

// overrides are read from the environment after the file
type overrides struct {
	APIBaseURL      string        `envconfig:"API_BASE_URL"`
	Port            string        `envconfig:"PORT"`
	CoalesceWindow  time.Duration `envconfig:"COALESCE_WINDOW"`
	RealtimeEnabled *bool         `envconfig:"REALTIME_ENABLED"`
	RealtimeURL     string        `envconfig:"REALTIME_URL"`
	LogProduction   *bool         `envconfig:"LOG_PRODUCTION"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	s := session.DefaultConfig()
	return &Config{
		API:         s.API,
		Cache:       s.Cache,
		Coordinator: s.Coordinator,
		Queries:     s.Queries,
		Ops:         Ops{Port: "8080"},
	}
}

// LoadConfig reads the YAML file at path on top of the defaults, then applies
// STUMART_* environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	var env overrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	config.apply(env)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	// yaml replaces a namespace entry as a whole
	config.Coordinator = queries.WithDefaultNamespaces(config.Coordinator)
	return config, nil
}

func (c *Config) apply(env overrides) {
	if env.APIBaseURL != "" {
		c.API.BaseURL = env.APIBaseURL
	}
	if env.Port != "" {
		c.Ops.Port = env.Port
	}
	if env.CoalesceWindow > 0 {
		c.Coordinator.CoalesceWindow = env.CoalesceWindow
	}
	if env.RealtimeEnabled != nil {
		c.Realtime.Enabled = *env.RealtimeEnabled
	}
	if env.RealtimeURL != "" {
		c.Realtime.URL = env.RealtimeURL
	}
	if env.LogProduction != nil {
		c.Logging.Production = *env.LogProduction
	}
}

// Validate checks settings that have no usable default
func (c *Config) Validate() error {
	var errs []error
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.Realtime.Enabled && c.Realtime.URL == "" {
		errs = append(errs, errors.New("realtime.url is required when realtime is enabled"))
	}
	if c.Ops.Port == "" {
		errs = append(errs, errors.New("ops.port is required"))
	}
	for name, ns := range c.Coordinator.Namespaces {
		if ns.TTL < 0 || ns.CoalesceWindow < 0 || ns.Debounce < 0 {
			errs = append(errs, fmt.Errorf("coordinator.namespaces.%s: durations must not be negative", name))
		}
	}
	return errors.Join(errs...)
}

// Session returns the data layer settings
func (c *Config) Session() session.Config {
	return session.Config{
		API:         c.API,
		Cache:       c.Cache,
		Coordinator: c.Coordinator,
		Queries:     c.Queries,
	}
}
