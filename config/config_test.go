package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
backend:
  baseURL: http://tracking.example.com
  timeoutMS: 5000
backends:
  - name: staging
    baseURL: http://staging.example.com
  - name: local
    baseURL: http://localhost:6565
    timeoutMS: 1000
agent:
  intervalMS: 20000
  minIntervalMS: 10000
  statePath: /var/lib/surveyor/state.db
dashboard:
  singleLiveIntervalMS: 3000
  returnPolicy: selection
server:
  port: 8080
  dynamoTable: surveyor-fixes
  dynamoRegion: eu-central-1
feed:
  agency_id: NEO
logging:
  level: debug
`

// chdirTemp switches into a temp directory holding config.yml with content
// and restores the working directory and global Config afterwards.
func chdirTemp(t *testing.T, content *string) {
	t.Helper()
	origConfig := Config
	origDir, _ := os.Getwd()
	t.Cleanup(func() {
		Config = origConfig
		_ = os.Chdir(origDir)
	})

	tmpDir := t.TempDir()
	if content != nil {
		if err := os.WriteFile(filepath.Join(tmpDir, "config.yml"), []byte(*content), 0644); err != nil {
			t.Fatalf("Failed to create temp file: %v", err)
		}
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}
}

func TestConfig_LoadFromFile(t *testing.T) {
	content := sampleConfig
	chdirTemp(t, &content)

	if err := LoadAppConfig(); err != nil {
		t.Fatalf("Failed to load config.yml: %v", err)
	}
	if Config.Agent.Interval() != 20*time.Second || Config.Agent.MinInterval() != 10*time.Second {
		t.Errorf("agent intervals = %v/%v", Config.Agent.Interval(), Config.Agent.MinInterval())
	}
	if Config.Dashboard.SingleLiveInterval() != 3*time.Second {
		t.Errorf("single live interval = %v", Config.Dashboard.SingleLiveInterval())
	}
	if Config.Dashboard.StatusInterval() != 15*time.Second || Config.Dashboard.AllLatestInterval() != 20*time.Second {
		t.Error("unset dashboard intervals did not get defaults")
	}
	if Config.Server.Port != 8080 || Config.Server.OfflineThreshold() != 5*time.Minute {
		t.Errorf("server = %+v", Config.Server)
	}
	if Config.Feed.AgencyID != "NEO" || Config.Feed.ReadInterval() != 30*time.Second {
		t.Errorf("feed = %+v", Config.Feed)
	}
	t.Logf("✓ Loaded config for %s", Config.Backend.BaseURL)
}

func TestConfig_MissingFile(t *testing.T) {
	chdirTemp(t, nil)

	err := LoadAppConfig()
	if err == nil {
		t.Error("Loading non-existent config should return error")
	}
	t.Logf("✓ Missing config returns error: %v", err)
}

func TestConfig_InvalidYAML(t *testing.T) {
	content := "invalid: yaml: content: [[["
	chdirTemp(t, &content)

	err := LoadAppConfig()
	if err == nil {
		t.Error("Loading invalid YAML should return error")
	}
	t.Logf("✓ Invalid YAML returns error: %v", err)
}

func TestConfig_EmptyFileUsesDefaults(t *testing.T) {
	content := ""
	chdirTemp(t, &content)

	if err := LoadAppConfig(); err != nil {
		t.Fatalf("empty config: %v", err)
	}
	if Config.Backend.BaseURL != DefaultBaseURL || Config.Backend.Timeout() != 10*time.Second {
		t.Errorf("backend = %+v", Config.Backend)
	}
	if Config.Agent.IntervalMS != DefaultIntervalMS || Config.Agent.MinIntervalMS != DefaultMinIntervalMS {
		t.Errorf("agent = %+v", Config.Agent)
	}
	if Config.Dashboard.ReturnPolicy != "all" || Config.Dashboard.AuthFailureLimit() != 3 {
		t.Errorf("dashboard = %+v", Config.Dashboard)
	}
	if Config.Server.Port != DefaultPort || Config.Logging.Level != "info" {
		t.Errorf("server/logging = %+v %+v", Config.Server, Config.Logging)
	}
	t.Log("✓ Empty file yields defaults")
}

func TestConfig_ExplicitPath(t *testing.T) {
	origConfig := Config
	t.Cleanup(func() { Config = origConfig })

	path := filepath.Join(t.TempDir(), "tracking.yml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := LoadAppConfigFrom(path); err != nil {
		t.Fatalf("LoadAppConfigFrom: %v", err)
	}
	if Config.Server.Port != 7000 {
		t.Errorf("port = %d", Config.Server.Port)
	}
	t.Log("✓ Explicit path is honoured")
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad base url", "backend:\n  baseURL: not a url\n", "BaseURL"},
		{"bad return policy", "dashboard:\n  returnPolicy: sometimes\n", "ReturnPolicy"},
		{"floor above interval", "agent:\n  intervalMS: 10000\n  minIntervalMS: 20000\n", "minIntervalMS"},
		{"floor above default interval", "agent:\n  minIntervalMS: 60000\n", "default interval"},
		{"negative timeout", "backend:\n  timeoutMS: -1\n", "TimeoutMS"},
		{"named backend without url", "backends:\n  - name: x\n", "BaseURL"},
		{"duplicate backend", "backends:\n  - name: x\n    baseURL: http://a\n  - name: x\n    baseURL: http://b\n", "duplicate"},
		{"dynamo table without region", "server:\n  dynamoTable: fixes\n", "DynamoRegion"},
		{"bad log level", "logging:\n  level: loud\n", "Level"},
		{"negative auth failure limit", "dashboard:\n  maxAuthFailures: -1\n", "MaxAuthFailures"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
	t.Log("✓ Invalid configurations are rejected")
}

func TestConfig_AuthFailureLimit(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want int
	}{
		{"unset uses default", "dashboard:\n  returnPolicy: all\n", DefaultMaxAuthFailures},
		{"explicit zero disables expiry", "dashboard:\n  maxAuthFailures: 0\n", 0},
		{"explicit value", "dashboard:\n  maxAuthFailures: 5\n", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatal(err)
			}
			if got := cfg.Dashboard.AuthFailureLimit(); got != tt.want {
				t.Errorf("AuthFailureLimit() = %d, want %d", got, tt.want)
			}
		})
	}
	t.Log("✓ maxAuthFailures: 0 is kept and disables expiry")
}

func TestConfig_SelectBackendByName(t *testing.T) {
	origConfig := Config
	t.Cleanup(func() { Config = origConfig })

	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	Config = cfg

	if b := SelectBackend("local"); b.BaseURL != "http://localhost:6565" || b.TimeoutMS != 1000 {
		t.Errorf("SelectBackend(local) = %+v", b)
	}
	if b := SelectBackend("staging"); b.TimeoutMS != 5000 {
		t.Errorf("staging did not inherit the top-level timeout: %+v", b)
	}
	if b := SelectBackend("nonexistent"); b.BaseURL != "http://staging.example.com" {
		t.Errorf("unknown name should fall back to the first backend, got %+v", b)
	}

	Config = AppConfig{Backend: BackendConfig{BaseURL: "http://only.example.com"}}
	if b := SelectBackend(""); b.BaseURL != "http://only.example.com" {
		t.Errorf("without a list the top-level backend is used, got %+v", b)
	}
	t.Log("✓ Backend selection by name with fallback")
}
