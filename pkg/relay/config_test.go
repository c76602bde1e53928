// Copyright 2024-2026 Aiku AI

package relay

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ExampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.BotToken == "" {
		t.Error("bot token not parsed")
	}
	if cfg.Telegram.Transport != "memory" {
		t.Errorf("transport: got %q, want %q", cfg.Telegram.Transport, "memory")
	}
	if cfg.Backend.RequestTimeoutDuration() != 10*time.Second {
		t.Errorf("request timeout: got %v, want 10s", cfg.Backend.RequestTimeoutDuration())
	}
	if cfg.Relay.SendRate != 25 {
		t.Errorf("send rate: got %v, want 25", cfg.Relay.SendRate)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
telegram:
    bot_token: tok
backend:
    base_url: http://backend.test
    api_key: key
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.Transport != "memory" {
		t.Errorf("default transport: got %q, want %q", cfg.Telegram.Transport, "memory")
	}
	if cfg.Telegram.SessionDir != "./sessions" {
		t.Errorf("default session dir: got %q", cfg.Telegram.SessionDir)
	}
	if cfg.Backend.RetryAttempts != 3 {
		t.Errorf("default retry attempts: got %d, want 3", cfg.Backend.RetryAttempts)
	}
	if cfg.Backend.RetryDelayDuration() != time.Second {
		t.Errorf("default retry delay: got %v, want 1s", cfg.Backend.RetryDelayDuration())
	}
}

func TestLoadConfigMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no bot token", "backend:\n    base_url: http://b\n    api_key: k\n"},
		{"no backend url", "telegram:\n    bot_token: tok\nbackend:\n    api_key: k\n"},
		{"no api key", "telegram:\n    bot_token: tok\nbackend:\n    base_url: http://b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.content)); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("REDIRECTOR_BOT_TOKEN", "env-token")
	t.Setenv("REDIRECTOR_BACKEND_API_KEY", "env-key")
	t.Setenv("REDIRECTOR_BACKEND_URL", "http://env.test")

	cfg, err := LoadConfig(writeConfig(t, `
telegram:
    bot_token: file-token
backend:
    base_url: http://file.test
    api_key: file-key
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.BotToken != "env-token" {
		t.Errorf("bot token: got %q, want env override", cfg.Telegram.BotToken)
	}
	if cfg.Backend.APIKey != "env-key" {
		t.Errorf("api key: got %q, want env override", cfg.Backend.APIKey)
	}
	if cfg.Backend.BaseURL != "http://env.test" {
		t.Errorf("base url: got %q, want env override", cfg.Backend.BaseURL)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "telegram: [")); err == nil {
		t.Error("malformed yaml accepted")
	}
}
