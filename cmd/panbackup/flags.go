// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/panbackup/cmd/panbackup/cli"
	"github.com/bureau-foundation/panbackup/lib/config"
	"github.com/bureau-foundation/panbackup/lib/credential"
	"github.com/bureau-foundation/panbackup/lib/netdisk"
	"github.com/bureau-foundation/panbackup/lib/retention"
)

// jobFlags are the configuration overrides shared by the commands
// that talk to the service. A flag overrides the file only when it
// was given on the command line.
type jobFlags struct {
	flagSet *pflag.FlagSet

	configPath  string
	localDir    string
	remoteDir   string
	maxBackups  int
	chunkSize   string
	parallel    int
	format      string
	digest      string
	tokenFile   string
	metricsFile string
	verbose     bool
}

// newFlagSet builds the flag set for command name. It is called once
// per Execute; the returned set is also kept so load can ask which
// flags were set.
func (f *jobFlags) newFlagSet(name string, local bool) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(&f.configPath, "config", "", "config file (default $"+config.EnvConfig+")")
	flagSet.StringVar(&f.remoteDir, "remote-dir", "", "destination directory under /apps/")
	flagSet.IntVar(&f.maxBackups, "max-backups", config.DefaultMaxBackups, "backup sets to keep (0 keeps all)")
	flagSet.StringVar(&f.tokenFile, "token-file", "", "OAuth token file")
	flagSet.StringVar(&f.format, "format", "gzip", "archive format whose names are grouped: gzip, zstd or lz4")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "log debug detail")
	if local {
		flagSet.StringVar(&f.localDir, "local-dir", "", "directory to back up")
		flagSet.StringVar(&f.chunkSize, "chunk-size", "4MiB", "upload block size")
		flagSet.IntVar(&f.parallel, "parallel", 1, "concurrent block uploads")
		flagSet.StringVar(&f.digest, "digest", "md5", "block digest algorithm")
		flagSet.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	}
	f.flagSet = flagSet
	return flagSet
}

func (f *jobFlags) changed(name string) bool {
	return f.flagSet != nil && f.flagSet.Changed(name)
}

// load reads the config file (from --config, else $PANBACKUP_CONFIG,
// else defaults only) and applies the flags that were set.
func (f *jobFlags) load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case f.configPath != "":
		cfg, err = config.LoadFile(f.configPath)
	case os.Getenv(config.EnvConfig) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if f.changed("local-dir") {
		cfg.LocalDir = f.localDir
	}
	if f.changed("remote-dir") {
		cfg.RemoteDir = f.remoteDir
	}
	if f.changed("max-backups") {
		cfg.MaxBackups = f.maxBackups
	}
	if f.changed("chunk-size") {
		size, err := config.ParseByteSize(f.chunkSize)
		if err != nil {
			return nil, fmt.Errorf("--chunk-size: %w", err)
		}
		cfg.ChunkSize = size
	}
	if f.changed("parallel") {
		cfg.Parallelism = f.parallel
	}
	if f.changed("format") {
		cfg.Format = f.format
	}
	if f.changed("digest") {
		cfg.Digest = f.digest
	}
	if f.changed("token-file") {
		cfg.Credential.TokenFile = f.tokenFile
	}
	if f.changed("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
	return cfg, nil
}

func (f *jobFlags) logger() *slog.Logger {
	return cli.NewCommandLogger(f.verbose)
}

// credentialSource builds the token source for cfg.
func credentialSource(cfg *config.Config, interactive bool, logger *slog.Logger) (*credential.Source, error) {
	return credential.NewSource(credential.Config{
		AppKey:      cfg.Credential.AppKey,
		SecretKey:   cfg.Credential.SecretKey,
		TokenFile:   cfg.Credential.TokenFile,
		Interactive: interactive || cfg.Credential.Interactive,
		Logger:      logger,
	})
}

func newClient(tokens netdisk.TokenSource, logger *slog.Logger) (*netdisk.Client, error) {
	return netdisk.NewClient(netdisk.Config{Tokens: tokens, Logger: logger})
}

// retentionManager builds the manager list and prune use.
func retentionManager(cfg *config.Config, logger *slog.Logger) (*retention.Manager, error) {
	format, err := cfg.ArchiveFormat()
	if err != nil {
		return nil, err
	}
	source, err := credentialSource(cfg, false, logger)
	if err != nil {
		return nil, err
	}
	client, err := newClient(source, logger)
	if err != nil {
		return nil, err
	}
	policy := cfg.RetryPolicy()
	policy.Logger = logger
	return &retention.Manager{
		Remote: client,
		Suffix: format.Suffix(),
		Retry:  policy,
		Logger: logger,
	}, nil
}
