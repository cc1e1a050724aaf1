// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/panbackup/cmd/panbackup/cli"
	"github.com/bureau-foundation/panbackup/lib/chunk"
	"github.com/bureau-foundation/panbackup/lib/config"
	"github.com/bureau-foundation/panbackup/lib/digest"
)

func manifestCommand() *cli.Command {
	var (
		chunkSize  string
		algorithm  string
		jsonOutput bool
	)
	return &cli.Command{
		Name:    "manifest",
		Summary: "Print the block digests of a file",
		Usage:   "panbackup manifest <file> [flags]",
		Description: `Split a file into upload blocks and print each block's digest, as
the upload would send them in its block list. Useful for checking an
archive against what the service recorded.`,
		Examples: []cli.Example{
			{Description: "Block list of an archive", Command: "panbackup manifest data-20240101-000000.tar.gz"},
			{Description: "BLAKE3 digests in 8 MiB blocks", Command: "panbackup manifest --digest blake3 --chunk-size 8MiB backup.tar.zst"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("manifest", pflag.ContinueOnError)
			flagSet.StringVar(&chunkSize, "chunk-size", "4MiB", "block size")
			flagSet.StringVar(&algorithm, "digest", "md5", "digest algorithm")
			flagSet.BoolVar(&jsonOutput, "json", false, "print JSON")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one file argument, got %d", len(args))
			}
			size, err := config.ParseByteSize(chunkSize)
			if err != nil {
				return fmt.Errorf("--chunk-size: %w", err)
			}
			if err := chunk.ValidateSize(int(size)); err != nil {
				return fmt.Errorf("--chunk-size: %w", err)
			}
			selected, err := digest.Lookup(algorithm)
			if err != nil {
				return fmt.Errorf("--digest: %w", err)
			}
			manifest, err := chunk.ComputeFile(args[0], int(size), selected)
			if err != nil {
				return err
			}
			return writeManifest(os.Stdout, manifest, jsonOutput)
		},
	}
}

type manifestJSON struct {
	Algorithm string   `json:"algorithm"`
	ChunkSize int      `json:"chunk_size"`
	TotalSize int64    `json:"total_size"`
	Blocks    []string `json:"blocks"`
}

func writeManifest(out io.Writer, manifest chunk.Manifest, jsonOutput bool) error {
	if jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(manifestJSON{
			Algorithm: manifest.Algorithm,
			ChunkSize: manifest.ChunkSize,
			TotalSize: manifest.TotalSize,
			Blocks:    manifest.Digests,
		})
	}
	fmt.Fprintf(out, "%s, %d blocks of %s, %s\n",
		humanize.IBytes(uint64(manifest.TotalSize)), manifest.Len(),
		humanize.IBytes(uint64(manifest.ChunkSize)), manifest.Algorithm)
	for index, value := range manifest.Digests {
		fmt.Fprintf(out, "%6d  %s\n", index, value)
	}
	return nil
}
