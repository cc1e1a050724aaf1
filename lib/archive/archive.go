// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive packs a local directory into a single compressed
// tar file, the artifact that is chunked and uploaded.
//
// The tar stream stores entries under the directory's base name, so
// extracting the archive recreates the directory. Regular files,
// directories and symlinks are archived; other file types (sockets,
// devices, pipes) are skipped with a debug log. A failed or canceled
// Compress removes its partial output.
package archive

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Artifact is a compressed archive on local disk.
type Artifact struct {
	// Path is the absolute local path of the archive.
	Path string

	// Name is the archive's filename, also its remote name.
	Name string

	// Size is the archive size in bytes.
	Size int64

	// SetName is Name without the format suffix.
	SetName string

	// Files is the number of regular files archived.
	Files int
}

// Archiver builds artifacts.
type Archiver struct {
	// Format selects the compression. The zero value is gzip.
	Format Format

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (a *Archiver) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// Compress archives localDir into outputPath, replacing any existing
// file. ctx is checked between entries.
func (a *Archiver) Compress(ctx context.Context, localDir, outputPath string) (artifact *Artifact, err error) {
	root, err := filepath.Abs(localDir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", localDir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("backup source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("backup source %s is not a directory", root)
	}

	absOutput, err := filepath.Abs(outputPath)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", outputPath, err)
	}

	output, err := os.OpenFile(absOutput, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}
	defer func() {
		if err != nil {
			output.Close()
			os.Remove(absOutput)
		}
	}()

	buffered := bufio.NewWriterSize(output, 1<<20)
	compressor, err := a.Format.compressor(buffered)
	if err != nil {
		return nil, err
	}
	tarWriter := tar.NewWriter(compressor)

	files, err := a.writeTree(ctx, tarWriter, root, absOutput)
	if err != nil {
		return nil, err
	}
	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("finishing tar stream: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return nil, fmt.Errorf("finishing %s stream: %w", a.Format, err)
	}
	if err := buffered.Flush(); err != nil {
		return nil, fmt.Errorf("writing archive: %w", err)
	}
	if err := output.Sync(); err != nil {
		return nil, fmt.Errorf("syncing archive: %w", err)
	}
	stat, err := output.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if err := output.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}

	name := filepath.Base(absOutput)
	setName, _ := strings.CutSuffix(name, a.Format.Suffix())
	artifact = &Artifact{
		Path:    absOutput,
		Name:    name,
		Size:    stat.Size(),
		SetName: setName,
		Files:   files,
	}
	a.logger().Info("archive created",
		"source", root,
		"archive", absOutput,
		"format", a.Format.String(),
		"files", files,
		"size", stat.Size(),
	)
	return artifact, nil
}

// writeTree walks root and writes every entry under root's base name.
// The archive being written is skipped if it lives inside root.
func (a *Archiver) writeTree(ctx context.Context, tarWriter *tar.Writer, root, exclude string) (int, error) {
	base := filepath.Base(root)
	logger := a.logger()
	files := 0

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if path == exclude {
			return nil
		}

		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(filepath.Join(base, relative))

		info, err := entry.Info()
		if err != nil {
			return err
		}

		var link string
		switch mode := info.Mode(); {
		case mode.IsRegular(), mode.IsDir():
		case mode&fs.ModeSymlink != 0:
			link, err = os.Readlink(path)
			if err != nil {
				return err
			}
		default:
			logger.Debug("skipping special file", "path", path, "mode", mode.String())
			return nil
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("tar header for %s: %w", path, err)
		}
		header.Name = name
		if info.IsDir() {
			header.Name += "/"
		}
		// Owner names depend on the local user database; numeric ids
		// are kept.
		header.Uname, header.Gname = "", ""

		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("writing header for %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if err := copyFile(tarWriter, path, info.Size()); err != nil {
			return err
		}
		files++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("archiving %s: %w", root, err)
	}
	return files, nil
}

// copyFile writes exactly size bytes of path. A file that changed size
// since its header was written fails the archive rather than
// producing a corrupt tar stream.
func copyFile(w io.Writer, path string, size int64) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	written, err := io.CopyN(w, file, size)
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%s shrank during archiving (%d of %d bytes)", path, written, size)
	}
	if err != nil {
		return fmt.Errorf("copying %s: %w", path, err)
	}
	return nil
}
