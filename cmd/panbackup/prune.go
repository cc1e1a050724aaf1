// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/panbackup/cmd/panbackup/cli"
	"github.com/bureau-foundation/panbackup/lib/lockfile"
)

func pruneCommand() *cli.Command {
	var flags jobFlags
	return &cli.Command{
		Name:    "prune",
		Summary: "Delete backup sets beyond max_backups",
		Description: `Apply the retention rule to remote_dir without uploading: list the
directory, group files into backup sets, and delete the oldest sets
so that at most max_backups remain.`,
		Examples: []cli.Example{
			{Description: "Keep only the three newest backups", Command: "panbackup prune --max-backups 3"},
		},
		Flags: func() *pflag.FlagSet {
			return flags.newFlagSet("prune", false)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateRemote(); err != nil {
				fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
				return &cli.ExitError{Code: cli.ExitUsage}
			}
			if cfg.MaxBackups <= 0 {
				fmt.Fprintln(os.Stdout, "retention disabled (max_backups <= 0); nothing to do")
				return nil
			}

			lock, err := lockfile.Acquire(cfg.ResolvedLockFile())
			if err != nil {
				return err
			}
			defer lock.Unlock()

			manager, err := retentionManager(cfg, flags.logger())
			if err != nil {
				return err
			}
			deleted, err := manager.Reconcile(ctx, cfg.RemoteDir, cfg.MaxBackups)
			if err != nil {
				return err
			}
			if len(deleted) == 0 {
				fmt.Fprintf(os.Stdout, "%s holds at most %d backup sets; nothing to delete\n", cfg.RemoteDir, cfg.MaxBackups)
				return nil
			}
			for _, set := range deleted {
				fmt.Fprintf(os.Stdout, "deleted %s (%d files)\n", set.Key, len(set.Paths))
			}
			return nil
		},
	}
}
