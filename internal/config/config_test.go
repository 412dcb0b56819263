package config

import (
	"os"
	"testing"
	"time"

	"github.com/ideascope/ideascope/internal/models"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ShutdownTimeout: 10 * time.Second,
			SSEHeartbeat:    10 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL: "https://backend.example.com",
			Timeout: 30 * time.Second,
		},
		Sources: SourcesConfig{
			Enabled: []string{"search", "trends", "reddit"},
		},
		Advisor: AdvisorConfig{
			TargetScore: 70,
		},
		Storage: StorageConfig{
			MaxSessions:    200,
			RotateInterval: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func TestLoadAndValidate(t *testing.T) {
	// Create temp config file
	content := `
server:
  listen_addr: ":9090"

backend:
  base_url: "https://backend.example.com"
  api_key: "test_key"
  timeout: 15s

sources:
  enabled:
    - search
    - reddit

telegram:
  bot_token: "test_token"
  chat_id: "test_chat_id"
  enabled: true

storage:
  max_sessions: 50

logging:
  level: "debug"
  format: "text"
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	// Test Load
	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Verify values
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("Unexpected listen addr: %v", cfg.Server.ListenAddr)
	}

	if cfg.Backend.Timeout != 15*time.Second {
		t.Errorf("Unexpected backend timeout: %v", cfg.Backend.Timeout)
	}

	if len(cfg.Sources.Enabled) != 2 {
		t.Errorf("Expected 2 enabled sources, got %d", len(cfg.Sources.Enabled))
	}

	// Defaults fill in what the file omits
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Unexpected shutdown timeout default: %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Advisor.TargetScore != 70 {
		t.Errorf("Unexpected advisor target default: %v", cfg.Advisor.TargetScore)
	}

	// Test Validate
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing backend base url",
			mutate:  func(c *Config) { c.Backend.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "missing telegram token when enabled",
			mutate:  func(c *Config) { c.Telegram.Enabled = true; c.Telegram.ChatID = "chat" },
			wantErr: true,
		},
		{
			name:    "no sources enabled",
			mutate:  func(c *Config) { c.Sources.Enabled = nil },
			wantErr: true,
		},
		{
			name:    "unknown source name",
			mutate:  func(c *Config) { c.Sources.Enabled = []string{"search", "myspace"} },
			wantErr: true,
		},
		{
			// Aliases are an API affordance; the config file must use
			// canonical names.
			name:    "alias instead of canonical source",
			mutate:  func(c *Config) { c.Sources.Enabled = []string{"forums"} },
			wantErr: true,
		},
		{
			name:    "duplicate source",
			mutate:  func(c *Config) { c.Sources.Enabled = []string{"search", "search"} },
			wantErr: true,
		},
		{
			name:    "advisor target out of range",
			mutate:  func(c *Config) { c.Advisor.TargetScore = 120 },
			wantErr: true,
		},
		{
			name:    "max sessions too small",
			mutate:  func(c *Config) { c.Storage.MaxSessions = 0 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnabledSources(t *testing.T) {
	cfg := validConfig()
	got := cfg.EnabledSources()
	want := []models.Source{models.SourceSearch, models.SourceTrends, models.SourceReddit}
	if len(got) != len(want) {
		t.Fatalf("EnabledSources() returned %d sources, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("EnabledSources()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
