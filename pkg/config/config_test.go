package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
credentials:
  username: user@example.com
  password: hunter2
zones:
  Upstairs: "1"
  downstairs: "2"
api:
  settle_delay: 1s
monitor:
  interval: 30s
  csv_path: /tmp/hvac.csv
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Credentials.Username != "user@example.com" {
		t.Errorf("username = %q", cfg.Credentials.Username)
	}
	if cfg.API.SettleDelay != time.Second {
		t.Errorf("settle_delay = %v, want 1s", cfg.API.SettleDelay)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("timeout default = %v, want 30s", cfg.API.Timeout)
	}
	if cfg.Monitor.Interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.CSVPath != "/tmp/hvac.csv" {
		t.Errorf("csv_path = %q", cfg.Monitor.CSVPath)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
credentials:
  username: user
  password: pass
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.API.SettleDelay != 3*time.Second {
		t.Errorf("settle_delay default = %v, want 3s", cfg.API.SettleDelay)
	}
	if cfg.Monitor.Interval != 60*time.Second {
		t.Errorf("interval default = %v, want 60s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.CSVPath != "hvac_status.csv" {
		t.Errorf("csv_path default = %q", cfg.Monitor.CSVPath)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level default = %q", cfg.Log.Level)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing username",
			content: `
credentials:
  password: pass
`,
			wantErr: "credentials.username",
		},
		{
			name: "missing password",
			content: `
credentials:
  username: user
`,
			wantErr: "credentials.password",
		},
		{
			name: "interval too short",
			content: `
credentials:
  username: user
  password: pass
monitor:
  interval: 1s
`,
			wantErr: "monitor.interval",
		},
		{
			name: "bad log level",
			content: `
credentials:
  username: user
  password: pass
log:
  level: verbose
`,
			wantErr: "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
credentials:
  username: file-user
  password: file-pass
`)

	t.Setenv("INFINITYCTL_CREDENTIALS_USERNAME", "env-user")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Credentials.Username != "env-user" {
		t.Errorf("username = %q, want env override", cfg.Credentials.Username)
	}
	if cfg.Credentials.Password != "file-pass" {
		t.Errorf("password = %q, want file value", cfg.Credentials.Password)
	}
}

func TestResolveZone(t *testing.T) {
	cfg := &Config{
		Zones: map[string]string{
			"Upstairs":   "1",
			"downstairs": "2",
		},
	}

	tests := []struct {
		arg      string
		expected string
	}{
		{"upstairs", "1"},
		{"UPSTAIRS", "1"},
		{"Downstairs", "2"},
		{"3", "3"},
		{"garage", "garage"},
	}

	for _, tt := range tests {
		if got := cfg.ResolveZone(tt.arg); got != tt.expected {
			t.Errorf("ResolveZone(%q) = %q, want %q", tt.arg, got, tt.expected)
		}
	}
}

func TestCreateExampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	if err := CreateExampleConfig(path); err != nil {
		t.Fatalf("CreateExampleConfig returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading example config: %v", err)
	}
	for _, want := range []string{"credentials:", "zones:", "monitor:"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("example config missing %q", want)
		}
	}
}
