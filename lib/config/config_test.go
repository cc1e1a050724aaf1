// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/panbackup/lib/chunk"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "panbackup.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.MaxBackups != DefaultMaxBackups {
		t.Errorf("expected max_backups=%d, got %d", DefaultMaxBackups, cfg.MaxBackups)
	}
	if cfg.ChunkSize != ByteSize(chunk.DefaultSize) {
		t.Errorf("expected chunk_size=4MiB, got %s", cfg.ChunkSize)
	}
	if cfg.Digest != "md5" || cfg.Format != "gzip" || cfg.Parallelism != 1 {
		t.Errorf("unexpected defaults: digest=%s format=%s parallelism=%d", cfg.Digest, cfg.Format, cfg.Parallelism)
	}
	if !strings.HasSuffix(cfg.Credential.TokenFile, filepath.Join("panbackup", "token.json")) {
		t.Errorf("unexpected token_file default %s", cfg.Credential.TokenFile)
	}
}

func TestLoad_RequiresConfigEnv(t *testing.T) {
	t.Setenv(EnvConfig, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when PANBACKUP_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "PANBACKUP_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithConfigEnv(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("SCRATCH", "")
	t.Setenv("BACKUP_ROOT", "/srv/data")
	t.Setenv("BAIDU_APP_KEY", "env-app")
	t.Setenv("BAIDU_SECRET_KEY", "env-secret")

	path := writeConfig(t, `
local_dir: ${BACKUP_ROOT}/site
remote_dir: /apps/panbackup/site
max_backups: 3
chunk_size: 8MiB
format: zstd
parallelism: 4
temp_dir: ${SCRATCH:-/var/tmp}
credential:
  secret_key: file-secret
  token_file: ${HOME}/tokens/baidu.json
  interactive: true
retry:
  max_attempts: 5
  base_delay: 500ms
`)
	t.Setenv(EnvConfig, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LocalDir != "/srv/data/site" {
		t.Errorf("local_dir = %s", cfg.LocalDir)
	}
	if cfg.TempDir != "/var/tmp" {
		t.Errorf("temp_dir = %s, want default from expansion", cfg.TempDir)
	}
	if cfg.ChunkSize != 8<<20 {
		t.Errorf("chunk_size = %d", cfg.ChunkSize)
	}
	if cfg.MaxBackups != 3 || cfg.Parallelism != 4 || cfg.Format != "zstd" {
		t.Errorf("unexpected values: %+v", cfg)
	}
	if cfg.Credential.AppKey != "env-app" {
		t.Errorf("app_key = %q, want environment fallback", cfg.Credential.AppKey)
	}
	if cfg.Credential.SecretKey != "file-secret" {
		t.Errorf("secret_key = %q, file value must win", cfg.Credential.SecretKey)
	}
	if cfg.Credential.TokenFile != "/home/tester/tokens/baidu.json" {
		t.Errorf("token_file = %s", cfg.Credential.TokenFile)
	}
	if !cfg.Credential.Interactive {
		t.Error("expected interactive=true")
	}
	policy := cfg.RetryPolicy()
	if policy.MaxAttempts != 5 || policy.BaseDelay != 500*time.Millisecond {
		t.Errorf("retry policy = %+v", policy)
	}
	if cfg.ResolvedLockFile() != "/home/tester/tokens/panbackup.lock" {
		t.Errorf("lock file = %s", cfg.ResolvedLockFile())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFile_RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "local_dir: /data\nmax_backup: 3\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for misspelled field")
	}
}

func TestLoadFile_EmptyFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.MaxBackups != DefaultMaxBackups {
		t.Errorf("max_backups = %d", cfg.MaxBackups)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestByteSize(t *testing.T) {
	tests := map[string]ByteSize{
		"4194304": 4 << 20,
		"4MiB":    4 << 20,
		"4 MiB":   4 << 20,
		"1MB":     1000000,
		"512KiB":  512 << 10,
	}
	for raw, want := range tests {
		got, err := ParseByteSize(raw)
		if err != nil || got != want {
			t.Errorf("ParseByteSize(%q) = %d, %v; want %d", raw, got, err, want)
		}
	}
	if _, err := ParseByteSize("lots"); err == nil {
		t.Error("ParseByteSize(lots) succeeded")
	}

	path := writeConfig(t, "chunk_size: 4194304\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.ChunkSize != 4<<20 {
		t.Errorf("integer chunk_size = %d", cfg.ChunkSize)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.LocalDir = "/data"
		cfg.RemoteDir = "/apps/panbackup"
		return cfg
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing local_dir", func(c *Config) { c.LocalDir = "" }, "local_dir is required"},
		{"missing remote_dir", func(c *Config) { c.RemoteDir = "" }, "remote_dir is required"},
		{"remote_dir outside apps", func(c *Config) { c.RemoteDir = "/backups" }, "remote_dir"},
		{"zero chunk", func(c *Config) { c.ChunkSize = 0 }, "chunk_size"},
		{"huge chunk", func(c *Config) { c.ChunkSize = 1 << 30 }, "chunk_size"},
		{"zero parallelism", func(c *Config) { c.Parallelism = 0 }, "parallelism"},
		{"unknown digest", func(c *Config) { c.Digest = "sha1" }, "digest"},
		{"blake3 uploads", func(c *Config) { c.Digest = "blake3" }, "md5"},
		{"unknown format", func(c *Config) { c.Format = "rar" }, "format"},
		{"no attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"bad delay", func(c *Config) { c.Retry.BaseDelay = "soon" }, "base_delay"},
		{"negative delay", func(c *Config) { c.Retry.BaseDelay = "-1s" }, "base_delay"},
		{"no token file", func(c *Config) { c.Credential.TokenFile = "" }, "token_file"},
	}
	for _, test := range tests {
		cfg := valid()
		test.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected error", test.name)
			continue
		}
		if !strings.Contains(err.Error(), test.want) {
			t.Errorf("%s: error %q does not mention %q", test.name, err, test.want)
		}
	}
}

func TestRetryPolicyZeroDelayDisablesWaiting(t *testing.T) {
	cfg := Default()
	cfg.Retry.BaseDelay = "0s"
	if policy := cfg.RetryPolicy(); policy.Delay(2) != 0 {
		t.Errorf("Delay(2) = %s, want 0", policy.Delay(2))
	}
}

func TestValidateRemoteIgnoresLocalFields(t *testing.T) {
	cfg := Default()
	cfg.RemoteDir = "/apps/panbackup"
	cfg.Digest = "blake3"
	if err := cfg.ValidateRemote(); err != nil {
		t.Errorf("ValidateRemote: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a config without local_dir")
	}
}
