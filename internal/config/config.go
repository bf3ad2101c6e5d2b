package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "config.yaml"

// Config represents the relay configuration, read from ~/.clawchat/config.yaml.
type Config struct {
	Addr         string        `yaml:"addr"`
	StaticDir    string        `yaml:"static_dir,omitempty"` // UI assets served at /
	IdentityFile string        `yaml:"identity_file"`
	SessionsFile string        `yaml:"sessions_file"` // gateway sessions index
	PollInterval time.Duration `yaml:"poll_interval"`
	Gateway      GatewayConfig `yaml:"gateway"`
	Logging      LoggingConfig `yaml:"logging"`
}

type GatewayConfig struct {
	URL         string        `yaml:"url"`
	Origin      string        `yaml:"origin,omitempty"` // derived from url when empty
	Token       string        `yaml:"token"`
	SessionKey  string        `yaml:"session_key"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	Retries     int           `yaml:"retries"`    // caller-side retries on transport errors
	SendRate    float64       `yaml:"send_rate"`  // chat.send per second, 0 = unlimited
	SendBurst   int           `yaml:"send_burst"` // limiter burst
	Locale      string        `yaml:"locale,omitempty"`
	UserAgent   string        `yaml:"user_agent,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	dir, err := Dir()
	if err != nil {
		dir = ".clawchat"
	}
	gwDir, err := GatewayStateDir()
	if err != nil {
		gwDir = ".openclaw"
	}
	return &Config{
		Addr:         "127.0.0.1:8899",
		IdentityFile: filepath.Join(dir, "device-identity.json"),
		SessionsFile: filepath.Join(gwDir, "agents", "main", "sessions", "sessions.json"),
		PollInterval: 800 * time.Millisecond,
		Gateway: GatewayConfig{
			URL:         "ws://127.0.0.1:18789",
			SessionKey:  "agent:main:main",
			CallTimeout: 10 * time.Second,
			SendRate:    2,
			SendBurst:   4,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from path on top of Default. An empty path means
// ~/.clawchat/config.yaml, which may be absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		dir, err := Dir()
		if err != nil {
			return nil, fmt.Errorf("config dir: %w", err)
		}
		path = filepath.Join(dir, FileName)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.IdentityFile = ExpandHome(cfg.IdentityFile)
	cfg.SessionsFile = ExpandHome(cfg.SessionsFile)
	cfg.StaticDir = ExpandHome(cfg.StaticDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides settings from CLAWCHAT_* environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("CLAWCHAT_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("CLAWCHAT_GATEWAY_URL"); v != "" {
		c.Gateway.URL = v
	}
	if v := os.Getenv("CLAWCHAT_GATEWAY_TOKEN"); v != "" {
		c.Gateway.Token = v
	}
	if v := os.Getenv("CLAWCHAT_SESSIONS_FILE"); v != "" {
		c.SessionsFile = v
	}
	if v := os.Getenv("CLAWCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CLAWCHAT_GATEWAY_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CLAWCHAT_GATEWAY_RETRIES: %w", err)
		}
		c.Gateway.Retries = n
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.IdentityFile == "" {
		return fmt.Errorf("identity_file is required")
	}
	if c.SessionsFile == "" {
		return fmt.Errorf("sessions_file is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	u, err := url.Parse(c.Gateway.URL)
	if err != nil {
		return fmt.Errorf("gateway.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("gateway.url must be ws:// or wss://")
	}
	if c.Gateway.SessionKey == "" {
		return fmt.Errorf("gateway.session_key is required")
	}
	if c.Gateway.CallTimeout <= 0 {
		return fmt.Errorf("gateway.call_timeout must be positive")
	}
	if c.Gateway.Retries < 0 {
		return fmt.Errorf("gateway.retries must not be negative")
	}
	if c.Gateway.SendRate < 0 {
		return fmt.Errorf("gateway.send_rate must not be negative")
	}
	return nil
}
