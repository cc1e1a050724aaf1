// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/panbackup/lib/archive"
	"github.com/bureau-foundation/panbackup/lib/chunk"
	"github.com/bureau-foundation/panbackup/lib/credential"
	"github.com/bureau-foundation/panbackup/lib/digest"
	"github.com/bureau-foundation/panbackup/lib/netdisk"
	"github.com/bureau-foundation/panbackup/lib/retry"
)

// EnvConfig names the environment variable [Load] reads the config
// path from.
const EnvConfig = "PANBACKUP_CONFIG"

// DefaultMaxBackups is the retention count when the file does not set
// one.
const DefaultMaxBackups = 7

// Config is the complete configuration of a backup job.
type Config struct {
	// LocalDir is the directory to back up.
	LocalDir string `yaml:"local_dir"`

	// RemoteDir is the destination directory. It must lie under
	// /apps/, the only tree the netdisk API lets applications write.
	RemoteDir string `yaml:"remote_dir"`

	// MaxBackups is how many backup sets to keep in RemoteDir. Zero
	// or negative disables retention.
	MaxBackups int `yaml:"max_backups"`

	// ChunkSize is the upload block size.
	ChunkSize ByteSize `yaml:"chunk_size"`

	// Digest names the block digest algorithm (md5, blake3).
	Digest string `yaml:"digest"`

	// Format names the archive compression (gzip, zstd, lz4).
	Format string `yaml:"format"`

	// Parallelism bounds concurrent block uploads.
	Parallelism int `yaml:"parallelism"`

	// TempDir is where the archive is written before upload. Empty
	// means next to LocalDir.
	TempDir string `yaml:"temp_dir"`

	// MetricsFile, when set, receives a Prometheus text-format
	// snapshot after every run.
	MetricsFile string `yaml:"metrics_file"`

	// LockFile guards against overlapping runs. Defaults to a file
	// next to the token file.
	LockFile string `yaml:"lock_file"`

	Credential CredentialConfig `yaml:"credential"`
	Retry      RetryConfig      `yaml:"retry"`
}

// CredentialConfig configures OAuth token acquisition.
type CredentialConfig struct {
	AppKey    string `yaml:"app_key"`
	SecretKey string `yaml:"secret_key"`

	// TokenFile holds the persisted access and refresh tokens.
	TokenFile string `yaml:"token_file"`

	// Interactive allows prompting for an authorization code when no
	// usable token exists. Unattended runs should leave it false.
	Interactive bool `yaml:"interactive"`
}

// RetryConfig configures the per-call retry policy.
type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay"`
}

// ByteSize is a size in bytes that unmarshals from an integer or a
// humanized string ("4MiB", "4 MB").
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	size, err := ParseByteSize(raw)
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// String formats the size in IEC units.
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// ParseByteSize parses a humanized size.
func ParseByteSize(raw string) (ByteSize, error) {
	size, err := humanize.ParseBytes(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", raw, err)
	}
	return ByteSize(size), nil
}

// Default returns the default configuration. LocalDir and RemoteDir
// have no default and must come from the file or flags.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	stateDir := filepath.Join(homeDir, ".config", "panbackup")

	return &Config{
		MaxBackups:  DefaultMaxBackups,
		ChunkSize:   ByteSize(chunk.DefaultSize),
		Digest:      digest.Default.Name(),
		Format:      archive.FormatGzip.String(),
		Parallelism: 1,
		Credential: CredentialConfig{
			TokenFile: filepath.Join(stateDir, "token.json"),
		},
		Retry: RetryConfig{
			MaxAttempts: retry.DefaultMaxAttempts,
			BaseDelay:   retry.DefaultBaseDelay.String(),
		},
	}
}

// Load loads configuration from the file named by PANBACKUP_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvConfig)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your panbackup.yaml config file, or use --config flag", EnvConfig)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, on top of
// Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyCredentialEnvironment()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current
// config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyCredentialEnvironment fills empty app credentials from the
// environment.
func (c *Config) applyCredentialEnvironment() {
	if c.Credential.AppKey == "" {
		c.Credential.AppKey = os.Getenv(credential.EnvAppKey)
	}
	if c.Credential.SecretKey == "" {
		c.Credential.SecretKey = os.Getenv(credential.EnvSecretKey)
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.LocalDir = expandVars(c.LocalDir, vars)
	c.TempDir = expandVars(c.TempDir, vars)
	c.MetricsFile = expandVars(c.MetricsFile, vars)
	c.LockFile = expandVars(c.LockFile, vars)
	c.Credential.TokenFile = expandVars(c.Credential.TokenFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
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

// ResolvedLockFile returns LockFile, or a lock next to the token file.
func (c *Config) ResolvedLockFile() string {
	if c.LockFile != "" {
		return c.LockFile
	}
	return filepath.Join(filepath.Dir(c.Credential.TokenFile), "panbackup.lock")
}

// RetryPolicy converts the retry section. Validate reports a bad
// base_delay; an unparseable value here falls back to the default.
func (c *Config) RetryPolicy() retry.Policy {
	policy := retry.Policy{MaxAttempts: c.Retry.MaxAttempts}
	if c.Retry.BaseDelay != "" {
		if delay, err := time.ParseDuration(c.Retry.BaseDelay); err == nil {
			if delay == 0 {
				delay = -1
			}
			policy.BaseDelay = delay
		}
	}
	return policy
}

// DigestAlgorithm returns the configured block digest.
func (c *Config) DigestAlgorithm() (digest.Algorithm, error) {
	return digest.Lookup(c.Digest)
}

// ArchiveFormat returns the configured compression.
func (c *Config) ArchiveFormat() (archive.Format, error) {
	return archive.ParseFormat(c.Format)
}

// Validate checks the configuration for errors. It does not touch the
// filesystem or the network.
func (c *Config) Validate() error {
	var errs []error

	if c.LocalDir == "" {
		errs = append(errs, fmt.Errorf("local_dir is required"))
	}

	if c.ChunkSize > ByteSize(chunk.MaxSize) || c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk_size must be between 1 B and %s, got %s",
			ByteSize(chunk.MaxSize), c.ChunkSize))
	}

	if c.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism))
	}

	if _, err := c.DigestAlgorithm(); err != nil {
		errs = append(errs, fmt.Errorf("digest: %w", err))
	} else if c.Digest != "" && !strings.EqualFold(c.Digest, digest.MD5.Name()) {
		errs = append(errs, fmt.Errorf("digest %q cannot be used for uploads: the netdisk service verifies block lists with md5", c.Digest))
	}

	if _, err := c.ArchiveFormat(); err != nil {
		errs = append(errs, fmt.Errorf("format: %w", err))
	}

	if err := c.ValidateRemote(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ValidateRemote checks only what the remote-side commands (list,
// prune) need: the destination, the credential and the retry budget.
func (c *Config) ValidateRemote() error {
	var errs []error

	if c.RemoteDir == "" {
		errs = append(errs, fmt.Errorf("remote_dir is required"))
	} else if err := netdisk.ValidateRemoteDir(c.RemoteDir); err != nil {
		errs = append(errs, fmt.Errorf("remote_dir: %w", err))
	}

	if c.Credential.TokenFile == "" {
		errs = append(errs, fmt.Errorf("credential.token_file is required"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.BaseDelay != "" {
		if delay, err := time.ParseDuration(c.Retry.BaseDelay); err != nil {
			errs = append(errs, fmt.Errorf("retry.base_delay: %w", err))
		} else if delay < 0 {
			errs = append(errs, fmt.Errorf("retry.base_delay must not be negative, got %s", delay))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
