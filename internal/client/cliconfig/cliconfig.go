// Package cliconfig loads the ccrctl configuration file.
package cliconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the ccrctl configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	State   StateConfig   `yaml:"state"`
	Admin   AdminConfig   `yaml:"admin"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`

	path string
}

type ServerConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StateConfig locates the local state file that stands in for browser
// storage.
type StateConfig struct {
	Path string `yaml:"path"`
}

// AdminConfig lists emails that may toggle admin mode in the client.
type AdminConfig struct {
	SpecialEmails []string `yaml:"special_emails"`
}

type StoreConfig struct {
	Cooldown      time.Duration `yaml:"cooldown"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultDir is ~/.ccr.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".ccr"), nil
}

// Default returns the configuration used when no file exists.
func Default(dir string) *Config {
	return &Config{
		Server:  ServerConfig{URL: "http://localhost:3000", Timeout: 10 * time.Second},
		State:   StateConfig{Path: filepath.Join(dir, "state.json")},
		Store:   StoreConfig{Cooldown: 60 * time.Second, RetryInterval: 30 * time.Second},
		Logging: LoggingConfig{Level: "info"},
		path:    filepath.Join(dir, "config.yaml"),
	}
}

// Load reads path, or ~/.ccr/config.yaml when path is empty. Missing files
// and fields fall back to defaults, and CCR_SERVER_URL overrides the server
// URL.
func Load(path string) (*Config, error) {
	if path == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	cfg := Default(filepath.Dir(path))
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if v := os.Getenv("CCR_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	cfg.fill(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fill restores defaults for fields the file left empty.
func (c *Config) fill(dir string) {
	d := Default(dir)
	if c.Server.URL == "" {
		c.Server.URL = d.Server.URL
	}
	if c.Server.Timeout <= 0 {
		c.Server.Timeout = d.Server.Timeout
	}
	if c.State.Path == "" {
		c.State.Path = d.State.Path
	}
	if c.Store.Cooldown <= 0 {
		c.Store.Cooldown = d.Store.Cooldown
	}
	if c.Store.RetryInterval <= 0 {
		c.Store.RetryInterval = d.Store.RetryInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server url %q", c.Server.URL)
	}
	return nil
}

// Path is the file the configuration was loaded from and saves to.
func (c *Config) Path() string { return c.path }

// Save writes the configuration back to its file.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Set updates one dotted key, such as server.url.
func (c *Config) Set(key, value string) error {
	switch strings.ToLower(key) {
	case "server.url":
		c.Server.URL = value
	case "server.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("server.timeout: %w", err)
		}
		c.Server.Timeout = d
	case "state.path":
		c.State.Path = value
	case "admin.special_emails":
		c.Admin.SpecialEmails = nil
		for _, e := range strings.Split(value, ",") {
			if e = strings.TrimSpace(e); e != "" {
				c.Admin.SpecialEmails = append(c.Admin.SpecialEmails, e)
			}
		}
	case "store.cooldown":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("store.cooldown: %w", err)
		}
		c.Store.Cooldown = d
	case "store.retry_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("store.retry_interval: %w", err)
		}
		c.Store.RetryInterval = d
	case "logging.level":
		c.Logging.Level = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return c.Validate()
}

// Keys lists the keys accepted by Set.
func Keys() []string {
	return []string{
		"server.url", "server.timeout", "state.path", "admin.special_emails",
		"store.cooldown", "store.retry_interval", "logging.level",
	}
}
