package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EngineConfig points fleetd at the trading-engine/config-store API.
type EngineConfig struct {
	BaseURL string `yaml:"base_url"`
	// AuthToken is a literal bearer token. AuthTokenKey names a secretstore
	// entry instead; when both are set the literal wins.
	AuthToken      string `yaml:"auth_token"`
	AuthTokenKey   string `yaml:"auth_token_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	RetryCount     int    `yaml:"retry_count"`
}

// PollConfig holds refresh cadence. Active applies while at least one
// dashboard client is attached, Inactive otherwise.
type PollConfig struct {
	ActiveSeconds   int `yaml:"active_seconds"`
	InactiveSeconds int `yaml:"inactive_seconds"`
}

type SecretStoreConfig struct {
	Path          string `yaml:"path"`
	EncryptionKey string `yaml:"encryption_key"` // 32 bytes, hex or base64
}

type LogConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Config is the fleetd service configuration (fleetd.yaml).
type Config struct {
	Listen      string            `yaml:"listen"`
	Plan        string            `yaml:"plan"` // subscription plan of the operating user; "" means free
	Engine      EngineConfig      `yaml:"engine"`
	Poll        PollConfig        `yaml:"poll"`
	OplogPath   string            `yaml:"oplog_path"`
	SecretStore SecretStoreConfig `yaml:"secret_store"`
	Log         LogConfig         `yaml:"log"`
}

func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Engine.TimeoutSeconds <= 0 {
		c.Engine.TimeoutSeconds = 15
	}
	if c.Engine.RetryCount < 0 {
		c.Engine.RetryCount = 0
	}
	if c.Poll.ActiveSeconds <= 0 {
		c.Poll.ActiveSeconds = 30
	}
	if c.Poll.InactiveSeconds <= 0 {
		c.Poll.InactiveSeconds = 60
	}
	if c.OplogPath == "" {
		c.OplogPath = "data/oplog.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSize <= 0 {
		c.Log.MaxSize = 100
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAge <= 0 {
		c.Log.MaxAge = 7
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Engine.BaseURL) == "" {
		return fmt.Errorf("engine.base_url is required")
	}
	if c.Poll.ActiveSeconds > c.Poll.InactiveSeconds {
		return fmt.Errorf("poll.active_seconds (%d) must not exceed poll.inactive_seconds (%d)",
			c.Poll.ActiveSeconds, c.Poll.InactiveSeconds)
	}
	return nil
}

// Load reads the YAML file at path, applies env overrides, defaults and
// validation. A missing file is fine when FLEETD_ENGINE_URL is set.
func Load(path string) (*Config, error) {
	var c Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to env-only config
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	c.applyEnv()
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FLEETD_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("FLEETD_PLAN"); v != "" {
		c.Plan = v
	}
	if v := os.Getenv("FLEETD_ENGINE_URL"); v != "" {
		c.Engine.BaseURL = v
	}
	if v := os.Getenv("FLEETD_ENGINE_TOKEN"); v != "" {
		c.Engine.AuthToken = v
	}
	if v := os.Getenv("FLEETD_OPLOG_PATH"); v != "" {
		c.OplogPath = v
	}
	if v := os.Getenv("FLEETD_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FLEETD_POLL_ACTIVE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Poll.ActiveSeconds = n
		}
	}
	if v := os.Getenv("FLEETD_POLL_INACTIVE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Poll.InactiveSeconds = n
		}
	}
}
