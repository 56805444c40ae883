// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for relockd.
//
// Configuration is loaded from a single YAML file specified by:
//   - RELOCKD_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. Environment
// variables do not override config values; the only expansion
// performed is ${VAR} and ${VAR:-default} in paths for portability.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/relockd/relockd/lib/cron"
)

// Config is the master configuration for relockd.
type Config struct {
	// Forge configures the GitHub App identity and API endpoint.
	Forge ForgeConfig `yaml:"forge"`

	// Target identifies the repository whose lockfiles relockd
	// maintains.
	Target TargetConfig `yaml:"target"`

	// Paths configures local state locations.
	Paths PathsConfig `yaml:"paths"`

	// Schedule configures the scheduled trigger.
	Schedule ScheduleConfig `yaml:"schedule"`

	// Dispatch configures the external dispatch webhook listener.
	Dispatch DispatchConfig `yaml:"dispatch"`

	// DirectPush configures the direct-push reconciliation strategy.
	DirectPush DirectPushConfig `yaml:"direct_push"`
}

// ForgeConfig configures the GitHub App identity.
type ForgeConfig struct {
	// BaseURL is the API base URL. Empty means the public API.
	BaseURL string `yaml:"base_url"`

	// AppID is the GitHub App's numeric identifier.
	AppID int64 `yaml:"app_id"`

	// PrivateKeyPath is the path to the App's RSA private key PEM.
	PrivateKeyPath string `yaml:"private_key_path"`

	// InstallationID identifies the App installation on the target
	// repository's owner.
	InstallationID int64 `yaml:"installation_id"`
}

// TargetConfig identifies the repository to maintain.
type TargetConfig struct {
	// Owner is the repository owner (user or organization).
	Owner string `yaml:"owner"`

	// Repo is the repository name.
	Repo string `yaml:"repo"`

	// ManifestPath is where the .relock.jsonc manifest lives in the
	// repository. Default: ".relock.jsonc".
	ManifestPath string `yaml:"manifest_path"`
}

// PathsConfig configures local state locations.
type PathsConfig struct {
	// State is the base directory for relockd data (bundle store, run
	// log, scratch clones).
	State string `yaml:"state"`
}

// ScheduleConfig configures the scheduled trigger.
type ScheduleConfig struct {
	// Cron is a five-field cron expression in UTC. Empty disables the
	// scheduled trigger.
	Cron string `yaml:"cron"`
}

// DispatchConfig configures the dispatch webhook listener.
type DispatchConfig struct {
	// Listen is the address for the webhook HTTP listener, e.g.
	// "127.0.0.1:8412". Empty disables the listener.
	Listen string `yaml:"listen"`

	// SecretPath is the path to the shared HMAC secret used to verify
	// dispatch payload signatures. Required when Listen is set.
	SecretPath string `yaml:"secret_path"`
}

// DirectPushConfig configures the direct-push strategy.
type DirectPushConfig struct {
	// ConflictPolicy is "remote-wins", "local-wins", or "reject".
	// Default: "reject".
	ConflictPolicy string `yaml:"conflict_policy"`

	// PushRetries is the number of push attempts before the run
	// fails. Default: 3.
	PushRetries int `yaml:"push_retries"`
}

// Default returns the default configuration. These defaults exist so
// all fields have sensible zero-values, not as a fallback — the
// config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Target: TargetConfig{
			ManifestPath: ".relock.jsonc",
		},
		Paths: PathsConfig{
			State: filepath.Join(homeDir, ".local", "state", "relockd"),
		},
		DirectPush: DirectPushConfig{
			ConflictPolicy: "reject",
			PushRetries:    3,
		},
	}
}

// Load loads configuration from the RELOCKD_CONFIG environment
// variable. If the variable is not set, Load fails; there are no
// fallbacks.
func Load() (*Config, error) {
	configPath := os.Getenv("RELOCKD_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("RELOCKD_CONFIG environment variable not set; " +
			"set it to the path of your relockd.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path on top of
// the defaults.
func LoadFile(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	config.expandVariables()
	return config, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (config *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	config.Paths.State = expandVars(config.Paths.State, vars)
	config.Forge.PrivateKeyPath = expandVars(config.Forge.PrivateKeyPath, vars)
	config.Dispatch.SecretPath = expandVars(config.Dispatch.SecretPath, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(input string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (config *Config) Validate() error {
	var errs []error

	if config.Forge.AppID == 0 {
		errs = append(errs, fmt.Errorf("forge.app_id is required"))
	}
	if config.Forge.PrivateKeyPath == "" {
		errs = append(errs, fmt.Errorf("forge.private_key_path is required"))
	}
	if config.Forge.InstallationID == 0 {
		errs = append(errs, fmt.Errorf("forge.installation_id is required"))
	}
	if config.Target.Owner == "" {
		errs = append(errs, fmt.Errorf("target.owner is required"))
	}
	if config.Target.Repo == "" {
		errs = append(errs, fmt.Errorf("target.repo is required"))
	}
	if config.Paths.State == "" {
		errs = append(errs, fmt.Errorf("paths.state is required"))
	}

	if config.Schedule.Cron != "" {
		if _, err := cron.Parse(config.Schedule.Cron); err != nil {
			errs = append(errs, fmt.Errorf("schedule.cron: %w", err))
		}
	}

	if config.Dispatch.Listen != "" && config.Dispatch.SecretPath == "" {
		errs = append(errs, fmt.Errorf("dispatch.secret_path is required when dispatch.listen is set"))
	}

	switch config.DirectPush.ConflictPolicy {
	case "remote-wins", "local-wins", "reject":
	default:
		errs = append(errs, fmt.Errorf("direct_push.conflict_policy must be remote-wins, local-wins, or reject"))
	}
	if config.DirectPush.PushRetries < 1 {
		errs = append(errs, fmt.Errorf("direct_push.push_retries must be at least 1"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the configured state directory if it does not
// exist.
func (config *Config) EnsurePaths() error {
	if config.Paths.State == "" {
		return nil
	}
	if err := os.MkdirAll(config.Paths.State, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", config.Paths.State, err)
	}
	return nil
}
