// Copyright 2024-2026 Aiku AI

package relay

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config is the root service configuration.
type Config struct {
	Telegram TelegramConfig    `yaml:"telegram"`
	Backend  BackendConfig     `yaml:"backend"`
	Relay    RelayConfig       `yaml:"relay"`
	Logging  zeroconfig.Config `yaml:"logging"`
}

// TelegramConfig configures both the bot front end and the per-user account
// transport.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	APIID    int    `yaml:"api_id"`
	APIHash  string `yaml:"api_hash"`
	// SessionDir is where per-user transport session files live.
	SessionDir string `yaml:"session_dir"`
	// AllowedUsers are the Telegram user ids admitted by the bot. Empty
	// admits everyone.
	AllowedUsers []int64 `yaml:"allowed_users"`
	// Transport selects the account transport implementation. "memory" is
	// the only one built in; production deployments link their own.
	Transport string `yaml:"transport"`
}

// BackendConfig configures the persistence RPC client. Timeouts and delays
// are in seconds.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	RequestTimeout int    `yaml:"request_timeout"`
	RetryAttempts  int    `yaml:"retry_attempts"`
	RetryDelay     int    `yaml:"retry_delay"`
}

// RequestTimeoutDuration returns the per-request timeout.
func (c BackendConfig) RequestTimeoutDuration() time.Duration {
	if c.RequestTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.RequestTimeout) * time.Second
}

// RetryDelayDuration returns the fixed delay between backend retries.
func (c BackendConfig) RetryDelayDuration() time.Duration {
	if c.RetryDelay <= 0 {
		return time.Second
	}
	return time.Duration(c.RetryDelay) * time.Second
}

// RelayConfig tunes the subscription engine.
type RelayConfig struct {
	// SendRate caps mirrored sends per user, in messages per second. Zero
	// disables the limiter.
	SendRate  float64 `yaml:"send_rate"`
	SendBurst int     `yaml:"send_burst"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// applyDefaults fills in the values a minimal config file may omit.
func (c *Config) applyDefaults() {
	if c.Telegram.SessionDir == "" {
		c.Telegram.SessionDir = "./sessions"
	}
	if c.Telegram.Transport == "" {
		c.Telegram.Transport = "memory"
	}
	if c.Backend.RetryAttempts <= 0 {
		c.Backend.RetryAttempts = 3
	}
}

// applyEnv lets secrets override the file so they can stay out of it.
func (c *Config) applyEnv() {
	if token := os.Getenv("REDIRECTOR_BOT_TOKEN"); token != "" {
		c.Telegram.BotToken = token
	}
	if key := os.Getenv("REDIRECTOR_BACKEND_API_KEY"); key != "" {
		c.Backend.APIKey = key
	}
	if url := os.Getenv("REDIRECTOR_BACKEND_URL"); url != "" {
		c.Backend.BaseURL = url
	}
}

// Validate checks the fields the service cannot run without.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("%w: telegram.bot_token is required", ErrInvalidInput)
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("%w: backend.base_url is required", ErrInvalidInput)
	}
	if c.Backend.APIKey == "" {
		return fmt.Errorf("%w: backend.api_key is required", ErrInvalidInput)
	}
	return nil
}

// LoadConfig reads the yaml config at path, applies defaults and environment
// overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
