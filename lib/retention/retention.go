// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package retention keeps a remote backup directory at a bounded
// number of backup sets.
//
// A backup set is every file that belongs to one run: normally a
// single archive, but a split archive's volumes (name.tar.gz.001,
// name.tar.gz.002, ...) form one set and are deleted together.
// Archive names embed a sortable timestamp, so ascending key order is
// oldest-first and the sets at the front of the order are the ones
// pruned.
//
// A file without the archive suffix is a set of its own, keyed by its
// full name. It counts toward max_backups and is pruned like any other
// set, so a stray README.txt in the backup directory sorts ahead of the
// archives and is deleted first. Keep the directory for backups only.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bureau-foundation/panbackup/lib/netdisk"
	"github.com/bureau-foundation/panbackup/lib/retry"
)

// DefaultSuffix is the archive suffix used when none is configured.
const DefaultSuffix = ".tar.gz"

// BackupSet is the files that make up one backup.
type BackupSet struct {
	// Key is the archive name without its suffix or volume number.
	Key string

	// Paths are the absolute remote paths of every member, sorted.
	Paths []string

	// Size is the sum of member sizes in bytes.
	Size int64
}

// Decision is the sets a reconciliation will delete, oldest first.
type Decision struct {
	Delete []BackupSet
}

// Paths returns every member path of every set in the decision.
func (d Decision) Paths() []string {
	var paths []string
	for _, set := range d.Delete {
		paths = append(paths, set.Paths...)
	}
	return paths
}

// DeriveGroupKey maps a filename to the backup set it belongs to.
//
//	job_20240101.tar.gz  -> job_20240101
//	set1.tar.gz.001      -> set1
//	notes.txt            -> notes.txt
func DeriveGroupKey(filename, suffix string) string {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	if key, ok := strings.CutSuffix(filename, suffix); ok && key != "" {
		return key
	}
	if dot := strings.LastIndexByte(filename, '.'); dot > 0 {
		remainder, volume := filename[:dot], filename[dot+1:]
		if isVolumeNumber(volume) {
			if key, ok := strings.CutSuffix(remainder, suffix); ok && key != "" {
				return key
			}
		}
	}
	return filename
}

func isVolumeNumber(segment string) bool {
	if segment == "" {
		return false
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Group collects file entries into backup sets sorted by key.
// Directory entries are ignored.
func Group(entries []netdisk.Entry, suffix string) []BackupSet {
	byKey := make(map[string]*BackupSet)
	for _, entry := range entries {
		if entry.Dir() {
			continue
		}
		key := DeriveGroupKey(entry.Name(), suffix)
		set, ok := byKey[key]
		if !ok {
			set = &BackupSet{Key: key}
			byKey[key] = set
		}
		set.Paths = append(set.Paths, entry.Path)
		set.Size += entry.Size
	}

	sets := make([]BackupSet, 0, len(byKey))
	for _, set := range byKey {
		sort.Strings(set.Paths)
		sets = append(sets, *set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Key < sets[j].Key })
	return sets
}

// Plan selects the oldest sets beyond maxBackups. sets must be sorted
// by key. A non-positive maxBackups keeps everything.
func Plan(sets []BackupSet, maxBackups int) Decision {
	if maxBackups <= 0 || len(sets) <= maxBackups {
		return Decision{}
	}
	excess := len(sets) - maxBackups
	return Decision{Delete: append([]BackupSet(nil), sets[:excess]...)}
}

// Remote is the part of the storage service retention uses.
// *netdisk.Client implements it.
type Remote interface {
	List(ctx context.Context, dir string) ([]netdisk.Entry, error)
	Delete(ctx context.Context, paths []string) error
}

// RetentionError is a failed listing or deletion. The backup it
// follows has already succeeded.
type RetentionError struct {
	Dir string
	Op  string
	Err error
}

func (e *RetentionError) Error() string {
	return fmt.Sprintf("retention %s %s: %v", e.Op, e.Dir, e.Err)
}

func (e *RetentionError) Unwrap() error { return e.Err }

// Manager applies retention to a remote directory.
type Manager struct {
	Remote Remote

	// Suffix is the archive suffix used for grouping. Defaults to
	// DefaultSuffix.
	Suffix string

	// Retry wraps the list and delete calls.
	Retry retry.Policy

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

// Sets lists remoteDir and groups it into backup sets.
func (m *Manager) Sets(ctx context.Context, remoteDir string) ([]BackupSet, error) {
	entries, err := retry.Value(ctx, m.Retry, "list", func(ctx context.Context) ([]netdisk.Entry, error) {
		return m.Remote.List(ctx, remoteDir)
	})
	if err != nil {
		return nil, &RetentionError{Dir: remoteDir, Op: "list", Err: err}
	}
	return Group(entries, m.Suffix), nil
}

// Reconcile deletes the oldest backup sets in remoteDir until at most
// maxBackups remain, in a single delete call. It returns the sets it
// deleted. A non-positive maxBackups does nothing and makes no remote
// calls.
func (m *Manager) Reconcile(ctx context.Context, remoteDir string, maxBackups int) ([]BackupSet, error) {
	if maxBackups <= 0 {
		return nil, nil
	}
	logger := m.logger().With("dir", remoteDir)

	sets, err := m.Sets(ctx, remoteDir)
	if err != nil {
		return nil, err
	}
	decision := Plan(sets, maxBackups)
	if len(decision.Delete) == 0 {
		logger.Debug("retention within limit", "sets", len(sets), "max_backups", maxBackups)
		return nil, nil
	}

	paths := decision.Paths()
	err = m.Retry.Do(ctx, "delete", func(ctx context.Context) error {
		return m.Remote.Delete(ctx, paths)
	})
	if err != nil {
		return nil, &RetentionError{Dir: remoteDir, Op: "delete", Err: err}
	}

	for _, set := range decision.Delete {
		logger.Info("deleted backup set", "key", set.Key, "files", len(set.Paths), "size", set.Size)
	}
	return decision.Delete, nil
}
