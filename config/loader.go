package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied after validation.
const (
	DefaultBaseURL                 = "http://localhost:6565"
	DefaultTimeoutMS               = 10000
	DefaultIntervalMS              = 30000
	DefaultMinIntervalMS           = 15000
	DefaultStatusIntervalMS        = 15000
	DefaultAllLatestIntervalMS     = 20000
	DefaultSingleLiveIntervalMS    = 5000
	DefaultReturnPolicy            = "all"
	DefaultMaxAuthFailures         = 3
	DefaultPort                    = 6565
	DefaultOfflineThresholdMinutes = 5
	DefaultFeedReadIntervalMS      = 30000
	DefaultLogLevel                = "info"
)

// Config is the global application configuration
var Config AppConfig

// SearchPaths are tried in order by LoadAppConfig.
var SearchPaths = []string{"config.yml", "./config/config.yml"}

// LoadAppConfig loads and validates the application configuration from the
// first config.yml found on SearchPaths.
func LoadAppConfig() error {
	var data []byte
	var err error
	for _, p := range SearchPaths {
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return err
	}
	cfg, err := Parse(data)
	if err != nil {
		return err
	}
	Config = cfg
	return nil
}

// LoadAppConfigFrom is LoadAppConfig with an explicit path.
func LoadAppConfigFrom(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cfg, err := Parse(data)
	if err != nil {
		return err
	}
	Config = cfg
	return nil
}

// Parse decodes, validates and defaults a configuration document. An empty
// document yields the defaults.
func Parse(data []byte) (AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, err
	}
	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	ApplyDefaults(&cfg)
	return cfg, nil
}

// Validate checks struct tags and cross-field constraints.
func Validate(cfg AppConfig) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return err
	}
	if cfg.Agent.IntervalMS > 0 && cfg.Agent.MinIntervalMS > cfg.Agent.IntervalMS {
		return fmt.Errorf("agent.minIntervalMS (%d) exceeds agent.intervalMS (%d)", cfg.Agent.MinIntervalMS, cfg.Agent.IntervalMS)
	}
	if cfg.Agent.IntervalMS == 0 && cfg.Agent.MinIntervalMS > DefaultIntervalMS {
		return fmt.Errorf("agent.minIntervalMS (%d) exceeds the default interval (%d)", cfg.Agent.MinIntervalMS, DefaultIntervalMS)
	}
	seen := map[string]bool{}
	for _, b := range cfg.Backends {
		if seen[b.Name] {
			return errors.New("duplicate backend name: " + b.Name)
		}
		seen[b.Name] = true
	}
	return nil
}

// ApplyDefaults fills every zero field with its default.
func ApplyDefaults(cfg *AppConfig) {
	setDefault(&cfg.Backend.TimeoutMS, DefaultTimeoutMS)
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBaseURL
	}
	for i := range cfg.Backends {
		setDefault(&cfg.Backends[i].TimeoutMS, cfg.Backend.TimeoutMS)
	}

	setDefault(&cfg.Agent.IntervalMS, DefaultIntervalMS)
	setDefault(&cfg.Agent.MinIntervalMS, DefaultMinIntervalMS)
	if cfg.Agent.MinIntervalMS > cfg.Agent.IntervalMS {
		cfg.Agent.MinIntervalMS = cfg.Agent.IntervalMS
	}

	setDefault(&cfg.Dashboard.StatusIntervalMS, DefaultStatusIntervalMS)
	setDefault(&cfg.Dashboard.AllLatestIntervalMS, DefaultAllLatestIntervalMS)
	setDefault(&cfg.Dashboard.SingleLiveIntervalMS, DefaultSingleLiveIntervalMS)
	if cfg.Dashboard.MaxAuthFailures == nil {
		n := DefaultMaxAuthFailures
		cfg.Dashboard.MaxAuthFailures = &n
	}
	if cfg.Dashboard.ReturnPolicy == "" {
		cfg.Dashboard.ReturnPolicy = DefaultReturnPolicy
	}

	setDefault(&cfg.Server.Port, DefaultPort)
	setDefault(&cfg.Server.OfflineThresholdMinutes, DefaultOfflineThresholdMinutes)
	setDefault(&cfg.Feed.ReadIntervalMS, DefaultFeedReadIntervalMS)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
}

func setDefault(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

// SelectBackend chooses a backend by name; fallback to the first listed;
// if none, use the top-level backend section.
func SelectBackend(name string) BackendConfig {
	if name != "" {
		for _, b := range Config.Backends {
			if b.Name == name {
				return BackendConfig{BaseURL: b.BaseURL, TimeoutMS: b.TimeoutMS}
			}
		}
	}
	if len(Config.Backends) > 0 {
		b := Config.Backends[0]
		return BackendConfig{BaseURL: b.BaseURL, TimeoutMS: b.TimeoutMS}
	}
	return Config.Backend
}
