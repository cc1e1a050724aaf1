// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lockfile provides an advisory, process-exclusive lock on a
// file, used to keep two backup runs (an overlapping cron schedule, a
// manual run during a scheduled one) from sharing one token file and
// one remote directory at the same time.
//
// The lock is flock(2) on an open descriptor, so the kernel releases
// it when the process exits, however it exits.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by Acquire when another process holds the
// lock.
var ErrLocked = errors.New("lock is held by another process")

// Lock is a held lock. Release it with Unlock.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes the lock at path without blocking, creating the file
// and its directory if needed. The holder's pid is written into the
// file for diagnostics; a contended lock error names it.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readHolder(file)
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			if holder != "" {
				return nil, fmt.Errorf("%s: %w (pid %s)", path, ErrLocked, holder)
			}
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	if err := file.Truncate(0); err == nil {
		file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{path: path, file: file}, nil
}

func readHolder(file *os.File) string {
	buffer := make([]byte, 32)
	n, _ := file.ReadAt(buffer, 0)
	return strings.TrimSpace(string(buffer[:n]))
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Unlock releases the lock. The file is left in place so the next
// holder locks the same inode. Unlock is idempotent.
func (l *Lock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil
	if err := unix.Flock(int(file.Fd()), unix.LOCK_UN); err != nil {
		file.Close()
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	return file.Close()
}
