package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `hyperflow:
  name: "TestApp"
  version: "1.0"
venue:
  ws_url: "wss://api.example.com/ws"
subscriptions:
  all_mids: true
  trades: ["BTC"]
storage:
  s3:
    enabled: false
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Hyperflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Hyperflow.Name)
	}
	if cfg.Venue.WsURL != "wss://api.example.com/ws" {
		t.Errorf("unexpected ws url: %s", cfg.Venue.WsURL)
	}
	// Defaults applied when omitted
	if cfg.Buffers.MaxTrades != 10000 || cfg.Buffers.MaxBooks != 100 {
		t.Errorf("unexpected buffer defaults: %+v", cfg.Buffers)
	}
	if cfg.Supervisor.LivenessWindow != 30*time.Second {
		t.Errorf("unexpected liveness window: %v", cfg.Supervisor.LivenessWindow)
	}
}

func TestLoadConfigMissingVenue(t *testing.T) {
	content := `hyperflow:
  name: "TestApp"
  version: "1.0"
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	if _, err := LoadConfig(f.Name()); err == nil {
		t.Fatalf("expected validation error for missing venue.ws_url")
	}
}

func TestValidateConfigRejectsZeroBuffers(t *testing.T) {
	cfg := &Config{
		Hyperflow: HyperflowConfig{Name: "x", Version: "1"},
		Venue:     VenueConfig{WsURL: "wss://x", EventBuffer: 1},
		Buffers:   BuffersConfig{MaxTrades: 0, MaxCandles: 1, MaxFills: 1, MaxBooks: 1},
		Supervisor: SupervisorConfig{
			LivenessWindow: time.Second,
			BackoffBase:    time.Second,
			BackoffCap:     1,
		},
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected error for zero max_trades")
	}
}

func TestUserFillsRequiresAccount(t *testing.T) {
	cfg := &Config{
		Hyperflow:     HyperflowConfig{Name: "x", Version: "1"},
		Venue:         VenueConfig{WsURL: "wss://x", EventBuffer: 1},
		Subscriptions: SubscriptionsConfig{UserFills: true},
		Buffers:       BuffersConfig{MaxTrades: 1, MaxCandles: 1, MaxFills: 1, MaxBooks: 1},
		Supervisor: SupervisorConfig{
			LivenessWindow: time.Second,
			BackoffBase:    time.Second,
			BackoffCap:     1,
		},
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected error for user_fills without account")
	}
}

func TestEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	if got := Environment(); got != "production" {
		t.Errorf("expected production, got %s", got)
	}

	t.Setenv("APP_ENV", "")
	if got := Environment(); got != "development" {
		t.Errorf("expected development, got %s", got)
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}
