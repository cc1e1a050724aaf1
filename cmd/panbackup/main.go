// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// panbackup archives a local directory, uploads it to Baidu Netdisk
// through the chunked upload API, and prunes old backups in the
// destination directory.
//
// Usage:
//
//	panbackup run --config /etc/panbackup.yaml
//	panbackup auth --config /etc/panbackup.yaml
//	panbackup list --config /etc/panbackup.yaml
//
// Run "panbackup --help" for every command.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/panbackup/cmd/panbackup/cli"
	"github.com/bureau-foundation/panbackup/lib/process"
)

func main() {
	if err := run(); err != nil {
		var coded interface{ ExitCode() int }
		if errors.As(err, &coded) {
			os.Exit(coded.ExitCode())
		}
		process.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCommand().Execute(ctx, os.Args[1:])
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "panbackup",
		Description: `Back up a directory to Baidu Netdisk.

Each run archives the local directory into one compressed tar file,
uploads it in fixed-size blocks through the netdisk chunked upload API
(retrying transient failures per block), removes the oldest backups
beyond max_backups from the destination, and deletes the local archive.`,
		Subcommands: []*cli.Command{
			runCommand(),
			authCommand(),
			listCommand(),
			pruneCommand(),
			manifestCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{Description: "Authorize once, interactively", Command: "panbackup auth --config /etc/panbackup.yaml"},
			{Description: "Nightly backup from cron", Command: "PANBACKUP_CONFIG=/etc/panbackup.yaml panbackup run --no-progress"},
		},
	}
}
