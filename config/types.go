package config

import "time"

// BackendConfig locates the tracking REST API.
type BackendConfig struct {
	BaseURL   string `yaml:"baseURL" validate:"omitempty,url"`
	TimeoutMS int    `yaml:"timeoutMS" validate:"gte=0"`
}

// Timeout is the per-request timeout.
func (b BackendConfig) Timeout() time.Duration { return ms(b.TimeoutMS) }

// NamedBackend is one entry of the backends list.
type NamedBackend struct {
	Name      string `yaml:"name" validate:"required"`
	BaseURL   string `yaml:"baseURL" validate:"required,url"`
	TimeoutMS int    `yaml:"timeoutMS" validate:"gte=0"`
}

// AgentConfig contains capture agent configuration
type AgentConfig struct {
	IntervalMS    int    `yaml:"intervalMS" validate:"gte=0"`
	MinIntervalMS int    `yaml:"minIntervalMS" validate:"gte=0"`
	StatePath     string `yaml:"statePath"`
}

func (a AgentConfig) Interval() time.Duration    { return ms(a.IntervalMS) }
func (a AgentConfig) MinInterval() time.Duration { return ms(a.MinIntervalMS) }

// DashboardConfig contains polling cadence and view-mode behaviour
type DashboardConfig struct {
	StatusIntervalMS     int    `yaml:"statusIntervalMS" validate:"gte=0"`
	AllLatestIntervalMS  int    `yaml:"allLatestIntervalMS" validate:"gte=0"`
	SingleLiveIntervalMS int    `yaml:"singleLiveIntervalMS" validate:"gte=0"`
	ReturnPolicy         string `yaml:"returnPolicy" validate:"omitempty,oneof=all selection"`
	// MaxAuthFailures is nil when unset; an explicit 0 disables session expiry.
	MaxAuthFailures *int `yaml:"maxAuthFailures" validate:"omitempty,gte=0"`
}

func (d DashboardConfig) StatusInterval() time.Duration     { return ms(d.StatusIntervalMS) }
func (d DashboardConfig) AllLatestInterval() time.Duration  { return ms(d.AllLatestIntervalMS) }
func (d DashboardConfig) SingleLiveInterval() time.Duration { return ms(d.SingleLiveIntervalMS) }

// AuthFailureLimit is the number of consecutive 401s that expire a session.
// Zero means never.
func (d DashboardConfig) AuthFailureLimit() int {
	if d.MaxAuthFailures == nil {
		return DefaultMaxAuthFailures
	}
	return *d.MaxAuthFailures
}

// ServerConfig contains reference backend configuration
type ServerConfig struct {
	Port                    int    `yaml:"port" validate:"gte=0,lte=65535"`
	OfflineThresholdMinutes int    `yaml:"offlineThresholdMinutes" validate:"gte=0"`
	SeedPath                string `yaml:"seedPath"`
	RequireReadAuth         bool   `yaml:"requireReadAuth"`
	DynamoTable             string `yaml:"dynamoTable"`
	DynamoRegion            string `yaml:"dynamoRegion" validate:"required_with=DynamoTable"`
}

// OfflineThreshold is how stale a latest fix may be before Offline.
func (s ServerConfig) OfflineThreshold() time.Duration {
	return time.Duration(s.OfflineThresholdMinutes) * time.Minute
}

// FeedConfig contains GTFS-RT and SIRI export configuration
type FeedConfig struct {
	AgencyID       string `yaml:"agency_id"`
	ReadIntervalMS int    `yaml:"readIntervalMS" validate:"gte=0"`
}

func (f FeedConfig) ReadInterval() time.Duration { return ms(f.ReadIntervalMS) }

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Backend   BackendConfig   `yaml:"backend"`
	Backends  []NamedBackend  `yaml:"backends" validate:"dive"`
	Agent     AgentConfig     `yaml:"agent"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Server    ServerConfig    `yaml:"server"`
	Feed      FeedConfig      `yaml:"feed"`
	Logging   LoggingConfig   `yaml:"logging"`
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
