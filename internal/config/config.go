// Package config holds the static process configuration: everything is
// read once at startup, there is no hot reload.
//
// Precedence, lowest to highest: built-in defaults, an optional YAML file,
// MURMUR_* environment variables, command-line flags (applied by the cli
// package on top of the resolved Config).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full startup configuration record.
type Config struct {
	Port          int           `yaml:"port"`
	Engine        string        `yaml:"engine"`
	DSN           string        `yaml:"dsn"`
	Verbose       bool          `yaml:"verbose"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	DefaultQueryLimit int `yaml:"default_query_limit"`
	MaxQueryLimit     int `yaml:"max_query_limit"`
	MaxSubscriptions  int `yaml:"max_subscriptions"`

	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	PubKey      string `yaml:"pubkey"`
	Contact     string `yaml:"contact"`
	RelayURL    string `yaml:"relay_url"`
}

// Default returns the built-in defaults: port 3000 and the embedded
// file-backed storage engine.
func Default() Config {
	return Config{
		Port:              3000,
		Engine:            "sqlite",
		DSN:               "murmur.db",
		SweepInterval:     5 * time.Minute,
		DefaultQueryLimit: 500,
		MaxQueryLimit:     5000,
		MaxSubscriptions:  32,
		Name:              "murmur",
	}
}

// Load resolves defaults, then the YAML file at path (if non-empty), then
// the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// UnmarshalYAML decodes the file form. Durations are Go duration strings
// ("5m", "30s"). Keys absent from the file leave the current value alone,
// so defaults survive a partial file.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Port          *int    `yaml:"port"`
		Engine        *string `yaml:"engine"`
		DSN           *string `yaml:"dsn"`
		Verbose       *bool   `yaml:"verbose"`
		SweepInterval *string `yaml:"sweep_interval"`

		DefaultQueryLimit *int `yaml:"default_query_limit"`
		MaxQueryLimit     *int `yaml:"max_query_limit"`
		MaxSubscriptions  *int `yaml:"max_subscriptions"`

		Name        *string `yaml:"name"`
		Description *string `yaml:"description"`
		PubKey      *string `yaml:"pubkey"`
		Contact     *string `yaml:"contact"`
		RelayURL    *string `yaml:"relay_url"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.Port != nil {
		c.Port = *raw.Port
	}
	if raw.Engine != nil {
		c.Engine = *raw.Engine
	}
	if raw.DSN != nil {
		c.DSN = *raw.DSN
	}
	if raw.Verbose != nil {
		c.Verbose = *raw.Verbose
	}
	if raw.SweepInterval != nil {
		d, err := time.ParseDuration(*raw.SweepInterval)
		if err != nil {
			return fmt.Errorf("sweep_interval: %w", err)
		}
		c.SweepInterval = d
	}
	if raw.DefaultQueryLimit != nil {
		c.DefaultQueryLimit = *raw.DefaultQueryLimit
	}
	if raw.MaxQueryLimit != nil {
		c.MaxQueryLimit = *raw.MaxQueryLimit
	}
	if raw.MaxSubscriptions != nil {
		c.MaxSubscriptions = *raw.MaxSubscriptions
	}
	if raw.Name != nil {
		c.Name = *raw.Name
	}
	if raw.Description != nil {
		c.Description = *raw.Description
	}
	if raw.PubKey != nil {
		c.PubKey = *raw.PubKey
	}
	if raw.Contact != nil {
		c.Contact = *raw.Contact
	}
	if raw.RelayURL != nil {
		c.RelayURL = *raw.RelayURL
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getInt("MURMUR_PORT", c.Port)
	c.Engine = getString("MURMUR_ENGINE", c.Engine)
	c.DSN = getString("MURMUR_DSN", c.DSN)
	c.Verbose = getBool("MURMUR_VERBOSE", c.Verbose)
	c.SweepInterval = getDuration("MURMUR_SWEEP_INTERVAL", c.SweepInterval)
	c.DefaultQueryLimit = getInt("MURMUR_DEFAULT_QUERY_LIMIT", c.DefaultQueryLimit)
	c.MaxQueryLimit = getInt("MURMUR_MAX_QUERY_LIMIT", c.MaxQueryLimit)
	c.MaxSubscriptions = getInt("MURMUR_MAX_SUBSCRIPTIONS", c.MaxSubscriptions)
	c.Name = getString("MURMUR_NAME", c.Name)
	c.Description = getString("MURMUR_DESCRIPTION", c.Description)
	c.PubKey = getString("MURMUR_PUBKEY", c.PubKey)
	c.Contact = getString("MURMUR_CONTACT", c.Contact)
	c.RelayURL = getString("MURMUR_RELAY_URL", c.RelayURL)
}

// Addr returns the listen address for the configured port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
