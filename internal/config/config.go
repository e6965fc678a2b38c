// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package config

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	parleyerr "github.com/parley-dev/parley/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level Parley configuration.
type Config struct {
	Data      DataConfig                `mapstructure:"data"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Chat      ChatConfig                `mapstructure:"chat"`
	Title     TitleConfig               `mapstructure:"title"`
}

// DataConfig controls where durable state lives.
type DataConfig struct {
	// Dir holds the session database. Empty means the per-user default.
	Dir string `mapstructure:"dir"`
}

// ProviderConfig overrides a backend's built-in endpoint, for proxies or
// self-hosted gateways. Keys are provider IDs.
type ProviderConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// ChatConfig controls generation behavior.
type ChatConfig struct {
	// ContextWindow is how many trailing messages a send carries as
	// conversation context.
	ContextWindow int `mapstructure:"context_window"`
}

// TitleConfig controls title synthesis.
type TitleConfig struct {
	// Model is the local model used for one-shot title generation.
	Model string `mapstructure:"model"`
	// Disabled turns title synthesis off entirely.
	Disabled bool `mapstructure:"disabled"`
}

// knownProviders mirrors the built-in provider registry. Kept static here
// so config validation needs no live registry.
var knownProviders = map[string]bool{
	"openai":   true,
	"deepseek": true,
	"gemini":   true,
	"ollama":   true,
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix PARLEY_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("data.dir", "")
	v.SetDefault("chat.context_window", 6)
	v.SetDefault("title.model", "llama3.2")
	v.SetDefault("title.disabled", false)

	// Environment
	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, parleyerr.Errorf(parleyerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns every
// validation error found, collecting all issues rather than stopping at
// the first one.
func (c *Config) Validate() []error {
	var errs []error

	for id, pc := range c.Providers {
		if !knownProviders[id] {
			errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
				"config: providers.%s is not a known provider", id))
			continue
		}
		if pc.Endpoint == "" {
			continue
		}
		u, err := url.Parse(pc.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
				"config: providers.%s.endpoint must be an absolute URL, got %q", id, pc.Endpoint))
		}
	}

	if c.Chat.ContextWindow <= 0 {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: chat.context_window must be greater than 0, got %d", c.Chat.ContextWindow))
	}

	if !c.Title.Disabled && c.Title.Model == "" {
		errs = append(errs, parleyerr.Errorf(parleyerr.CodeConfigValidateInvalidValue,
			"config: title.model must not be empty unless title.disabled is set"))
	}

	return errs
}

// Endpoint returns the configured endpoint override for a provider, or ""
// when the built-in endpoint should be used.
func (c *Config) Endpoint(providerID string) string {
	return c.Providers[providerID].Endpoint
}

// DataDir resolves the directory holding durable state, falling back to
// the per-user default when unconfigured.
func (c *Config) DataDir() (string, error) {
	if c.Data.Dir != "" {
		return c.Data.Dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", parleyerr.Errorf(parleyerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "parley"), nil
}

// DBPath resolves the session database path, creating the data directory
// when missing.
func (c *Config) DBPath() (string, error) {
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", parleyerr.Errorf(parleyerr.CodeConfigLoadReadFailure, "creating data directory %s: %w", dir, err)
	}
	return filepath.Join(dir, "parley.db"), nil
}
