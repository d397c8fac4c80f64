package internal

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/theoremus-urban-solutions/surveyor-tracking/config"
)

// Environment variables read by the commands.
const (
	EnvBaseURL = "SURVEYOR_BASE_URL"
	EnvConfig  = "SURVEYOR_CONFIG"
	EnvState   = "SURVEYOR_STATE"
)

// LoadEnv reads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// LoadConfig loads path, or $SURVEYOR_CONFIG, or the first config.yml on
// the search paths. When nothing was named and no file exists the defaults
// are used. The result is also stored in config.Config.
func LoadConfig(path string) (config.AppConfig, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := config.LoadAppConfigFrom(path); err != nil {
			return config.AppConfig{}, err
		}
		return config.Config, nil
	}

	err := config.LoadAppConfig()
	if errors.Is(err, fs.ErrNotExist) {
		cfg, perr := config.Parse(nil)
		if perr != nil {
			return config.AppConfig{}, perr
		}
		config.Config = cfg
		return cfg, nil
	}
	if err != nil {
		return config.AppConfig{}, err
	}
	return config.Config, nil
}

// ResolveBackend picks the named backend and applies the
// $SURVEYOR_BASE_URL and flag overrides, flag last.
func ResolveBackend(name, flagBaseURL string) config.BackendConfig {
	b := config.SelectBackend(name)
	if v := os.Getenv(EnvBaseURL); v != "" {
		b.BaseURL = v
	}
	if flagBaseURL != "" {
		b.BaseURL = flagBaseURL
	}
	return b
}

// ResolveStatePath returns flagPath, $SURVEYOR_STATE or the configured
// agent state path, in that order, defaulting to surveyor-state.db.
func ResolveStatePath(flagPath string) string {
	switch {
	case flagPath != "":
		return flagPath
	case os.Getenv(EnvState) != "":
		return os.Getenv(EnvState)
	case config.Config.Agent.StatePath != "":
		return config.Config.Agent.StatePath
	}
	return "surveyor-state.db"
}
