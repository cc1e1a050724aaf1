// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/panbackup/cmd/panbackup/cli"
)

func authCommand() *cli.Command {
	var flags jobFlags
	return &cli.Command{
		Name:    "auth",
		Summary: "Authorize panbackup and store a token",
		Description: `Print the netdisk authorization URL, read the code shown after
approving access, and store the resulting access and refresh tokens
in the token file. Later runs refresh the token unattended.

Requires a terminal on stdin.`,
		Flags: func() *pflag.FlagSet {
			return flags.newFlagSet("auth", false)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if cfg.Credential.TokenFile == "" {
				return fmt.Errorf("credential.token_file is required")
			}
			source, err := credentialSource(cfg, true, flags.logger())
			if err != nil {
				return err
			}
			token, err := source.Authorize(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "token stored in %s (expires %s)\n",
				cfg.Credential.TokenFile, token.Expiry().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}
