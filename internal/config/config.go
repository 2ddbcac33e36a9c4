// Package config loads the gf client configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models client.yaml.
type Config struct {
	Addr              string        `yaml:"addr"`
	CACert            string        `yaml:"cacert"`
	Insecure          bool          `yaml:"insecure"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	RefreshLeeway     time.Duration `yaml:"refresh_leeway"`
	RPCTimeout        time.Duration `yaml:"rpc_timeout"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Addr:              "localhost:8443",
		KeepaliveInterval: time.Minute,
		RefreshLeeway:     2 * time.Minute,
		RPCTimeout:        10 * time.Second,
	}
}

// Path returns the config file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, "client.yaml")
}

// Validate ensures the config is usable.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config.addr is required")
	}
	if !strings.Contains(c.Addr, ":") {
		return fmt.Errorf("config.addr must be host:port, got %q", c.Addr)
	}
	if c.Insecure && c.CACert != "" {
		return fmt.Errorf("config.cacert and config.insecure are mutually exclusive")
	}
	if c.KeepaliveInterval <= 0 {
		return fmt.Errorf("config.keepalive_interval must be positive")
	}
	if c.RefreshLeeway < 0 {
		return fmt.Errorf("config.refresh_leeway must not be negative")
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("config.rpc_timeout must be positive")
	}
	return nil
}

// normalize expands a leading ~ in the CA path.
func (c *Config) normalize() {
	c.Addr = strings.TrimSpace(c.Addr)
	if strings.HasPrefix(c.CACert, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			c.CACert = filepath.Join(home, c.CACert[2:])
		}
	}
}

// FromYAML parses config over the defaults; keys absent from data keep their default value.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOptional reads the config at path, returning the defaults when the file does not exist.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}
