// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relockd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validConfig = `
forge:
  app_id: 7
  private_key_path: /etc/relockd/app.pem
  installation_id: 42
target:
  owner: acme
  repo: widgets
paths:
  state: /var/lib/relockd
schedule:
  cron: "0 6 * * 1"
dispatch:
  listen: "127.0.0.1:8412"
  secret_path: /etc/relockd/dispatch.secret
direct_push:
  conflict_policy: remote-wins
  push_retries: 5
`

func TestLoadFile(t *testing.T) {
	config, err := LoadFile(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if config.Forge.AppID != 7 || config.Forge.InstallationID != 42 {
		t.Errorf("forge = %+v", config.Forge)
	}
	if config.Target.Owner != "acme" || config.Target.Repo != "widgets" {
		t.Errorf("target = %+v", config.Target)
	}
	if config.Target.ManifestPath != ".relock.jsonc" {
		t.Errorf("manifest path default not applied: %q", config.Target.ManifestPath)
	}
	if config.DirectPush.ConflictPolicy != "remote-wins" || config.DirectPush.PushRetries != 5 {
		t.Errorf("direct_push = %+v", config.DirectPush)
	}
}

func TestLoadRequiresEnvironmentVariable(t *testing.T) {
	t.Setenv("RELOCKD_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without RELOCKD_CONFIG")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("RELOCKD_CONFIG", writeConfig(t, validConfig))
	config, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Target.Repo != "widgets" {
		t.Errorf("target repo = %q", config.Target.Repo)
	}
}

func TestVariableExpansion(t *testing.T) {
	t.Setenv("HOME", "/home/relocker")
	config, err := LoadFile(writeConfig(t, `
forge:
  app_id: 7
  private_key_path: ${HOME}/keys/app.pem
  installation_id: 42
target:
  owner: acme
  repo: widgets
paths:
  state: ${RELOCKD_STATE:-/var/lib/relockd}
`))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if config.Forge.PrivateKeyPath != "/home/relocker/keys/app.pem" {
		t.Errorf("private key path = %q", config.Forge.PrivateKeyPath)
	}
	if config.Paths.State != "/var/lib/relockd" {
		t.Errorf("state path = %q", config.Paths.State)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing_app_id", func(c *Config) { c.Forge.AppID = 0 }, "forge.app_id"},
		{"missing_key", func(c *Config) { c.Forge.PrivateKeyPath = "" }, "forge.private_key_path"},
		{"missing_installation", func(c *Config) { c.Forge.InstallationID = 0 }, "forge.installation_id"},
		{"missing_owner", func(c *Config) { c.Target.Owner = "" }, "target.owner"},
		{"missing_repo", func(c *Config) { c.Target.Repo = "" }, "target.repo"},
		{"bad_cron", func(c *Config) { c.Schedule.Cron = "not a cron" }, "schedule.cron"},
		{"dispatch_without_secret", func(c *Config) { c.Dispatch.SecretPath = "" }, "dispatch.secret_path"},
		{"bad_policy", func(c *Config) { c.DirectPush.ConflictPolicy = "coin-flip" }, "conflict_policy"},
		{"zero_retries", func(c *Config) { c.DirectPush.PushRetries = 0 }, "push_retries"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config, err := LoadFile(writeConfig(t, validConfig))
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			test.mutate(config)
			err = config.Validate()
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Fatalf("Validate = %v, want error containing %q", err, test.want)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	config := Default()
	config.Paths.State = filepath.Join(t.TempDir(), "nested", "state")
	if err := config.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	if _, err := os.Stat(config.Paths.State); err != nil {
		t.Errorf("state dir not created: %v", err)
	}
}
