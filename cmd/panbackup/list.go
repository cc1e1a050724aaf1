// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/panbackup/cmd/panbackup/cli"
	"github.com/bureau-foundation/panbackup/lib/retention"
)

func listCommand() *cli.Command {
	var (
		flags      jobFlags
		jsonOutput bool
	)
	return &cli.Command{
		Name:    "list",
		Summary: "List backup sets in remote_dir, oldest first",
		Description: `List the backup sets in remote_dir as the retention rule sees them:
files grouped by backup key, ordered oldest first. Sets past the
max_backups limit are the ones the next run or prune deletes.`,
		Flags: func() *pflag.FlagSet {
			flagSet := flags.newFlagSet("list", false)
			flagSet.BoolVar(&jsonOutput, "json", false, "print JSON instead of a table")
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
			if err := cfg.ValidateRemote(); err != nil {
				fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
				return &cli.ExitError{Code: cli.ExitUsage}
			}
			manager, err := retentionManager(cfg, flags.logger())
			if err != nil {
				return err
			}
			sets, err := manager.Sets(ctx, cfg.RemoteDir)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeSetsJSON(os.Stdout, sets)
			}
			return writeSetsTable(os.Stdout, sets, retention.Plan(sets, cfg.MaxBackups))
		},
	}
}

func writeSetsTable(out io.Writer, sets []retention.BackupSet, decision retention.Decision) error {
	expiring := make(map[string]bool, len(decision.Delete))
	for _, set := range decision.Delete {
		expiring[set.Key] = true
	}
	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "KEY\tFILES\tSIZE\tSTATUS")
	for _, set := range sets {
		status := "keep"
		if expiring[set.Key] {
			status = "expired"
		}
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\n", set.Key, len(set.Paths), humanize.IBytes(uint64(set.Size)), status)
	}
	return writer.Flush()
}

type setJSON struct {
	Key   string   `json:"key"`
	Paths []string `json:"paths"`
	Size  int64    `json:"size"`
}

func writeSetsJSON(out io.Writer, sets []retention.BackupSet) error {
	entries := make([]setJSON, 0, len(sets))
	for _, set := range sets {
		entries = append(entries, setJSON{Key: set.Key, Paths: set.Paths, Size: set.Size})
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}
