// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/panbackup/cmd/panbackup/cli"
	"github.com/bureau-foundation/panbackup/lib/backup"
	"github.com/bureau-foundation/panbackup/lib/config"
	"github.com/bureau-foundation/panbackup/lib/lockfile"
	"github.com/bureau-foundation/panbackup/lib/metrics"
	"github.com/bureau-foundation/panbackup/lib/netdisk"
)

func runCommand() *cli.Command {
	var (
		flags      jobFlags
		noProgress bool
	)
	return &cli.Command{
		Name:    "run",
		Summary: "Archive, upload and prune once",
		Description: `Run one backup: archive local_dir, upload the archive to remote_dir,
then delete the oldest backup sets beyond max_backups.

Exit status is 0 on success, 1 when the backup failed, 2 for an
invalid configuration, and 3 when the upload succeeded but old backups
could not be pruned.`,
		Flags: func() *pflag.FlagSet {
			flagSet := flags.newFlagSet("run", true)
			flagSet.BoolVar(&noProgress, "no-progress", false, "disable the terminal progress bar")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
				return &cli.ExitError{Code: cli.ExitUsage}
			}
			showProgress := !noProgress && cli.IsTerminal(os.Stderr)
			return runBackup(ctx, cfg, flags.logger(), showProgress, os.Stdout)
		},
	}
}

func runBackup(ctx context.Context, cfg *config.Config, logger *slog.Logger, showProgress bool, out io.Writer) error {
	lock, err := lockfile.Acquire(cfg.ResolvedLockFile())
	if err != nil {
		return err
	}
	defer lock.Unlock()

	algorithm, err := cfg.DigestAlgorithm()
	if err != nil {
		return err
	}
	format, err := cfg.ArchiveFormat()
	if err != nil {
		return err
	}
	source, err := credentialSource(cfg, false, logger)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	observers := backup.MultiObserver{backup.NewLogObserver(logger), recorder}
	if showProgress {
		observers = append(observers, cli.NewProgressBar(os.Stderr, nil))
	}

	orchestrator, err := backup.New(backup.Options{
		Config: backup.Config{
			LocalDir:    cfg.LocalDir,
			RemoteDir:   cfg.RemoteDir,
			MaxBackups:  cfg.MaxBackups,
			ChunkSize:   int(cfg.ChunkSize),
			Digest:      algorithm,
			Format:      format,
			Parallelism: cfg.Parallelism,
			TempDir:     cfg.TempDir,
			Retry:       cfg.RetryPolicy(),
		},
		Credentials: source,
		NewRemote: func(tokens netdisk.TokenSource) (backup.Remote, error) {
			return newClient(tokens, logger)
		},
		Observer: observers,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	report, runErr := orchestrator.Run(ctx)
	recorder.RecordRun(report, runErr)
	if cfg.MetricsFile != "" {
		if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("writing metrics file failed", "path", cfg.MetricsFile, "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	printSummary(out, report)
	if report.RetentionErr != nil {
		logger.Error("backup uploaded but pruning old backups failed", "error", report.RetentionErr)
		return &cli.ExitError{Code: cli.ExitRetentionFailed}
	}
	return nil
}

func printSummary(out io.Writer, report *backup.Report) {
	fmt.Fprintf(out, "uploaded %s (%s, %d blocks) in %s\n",
		report.Remote.Path,
		humanize.IBytes(uint64(report.Remote.Size)),
		report.Blocks,
		report.Duration.Round(time.Millisecond))
	for _, set := range report.Deleted {
		fmt.Fprintf(out, "deleted %s (%d files)\n", set.Key, len(set.Paths))
	}
}
