// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/bureau-foundation/panbackup/lib/archive"
	"github.com/bureau-foundation/panbackup/lib/chunk"
	"github.com/bureau-foundation/panbackup/lib/clock"
	"github.com/bureau-foundation/panbackup/lib/digest"
	"github.com/bureau-foundation/panbackup/lib/netdisk"
	"github.com/bureau-foundation/panbackup/lib/retention"
	"github.com/bureau-foundation/panbackup/lib/retry"
	"github.com/bureau-foundation/panbackup/lib/upload"
)

// Config describes one backup job.
type Config struct {
	// LocalDir is the directory to archive.
	LocalDir string

	// RemoteDir is the destination directory under /apps/.
	RemoteDir string

	// MaxBackups is the number of backup sets to keep. Zero or
	// negative disables retention.
	MaxBackups int

	// ChunkSize is the upload block size. Zero selects
	// chunk.DefaultSize.
	ChunkSize int

	// Digest is the block digest. Nil selects digest.Default.
	Digest digest.Algorithm

	// Format is the archive compression.
	Format archive.Format

	// Parallelism bounds concurrent block uploads.
	Parallelism int

	// TempDir holds the archive during upload. Empty places it next
	// to LocalDir.
	TempDir string

	// Retry wraps every remote call.
	Retry retry.Policy
}

// Remote is the storage service as the whole run uses it.
// *netdisk.Client implements it.
type Remote interface {
	upload.Remote
	retention.Remote
}

// Archiver builds the local archive. *archive.Archiver implements it.
type Archiver interface {
	Compress(ctx context.Context, localDir, outputPath string) (*archive.Artifact, error)
}

// Options holds the collaborators of an Orchestrator.
type Options struct {
	Config Config

	// Credentials supplies access tokens. Required.
	Credentials netdisk.TokenSource

	// NewRemote builds the storage client once a credential is
	// available. Required.
	NewRemote func(tokens netdisk.TokenSource) (Remote, error)

	// Archiver defaults to an *archive.Archiver for Config.Format.
	Archiver Archiver

	// Observer defaults to NopObserver.
	Observer Observer

	// Clock names the archive and times the run. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Report summarizes a run. Fields for stages that did not run are
// zero.
type Report struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Artifact *archive.Artifact
	Manifest chunk.Manifest
	Remote   *upload.Result
	Blocks   int
	Deleted  []retention.BackupSet

	// RetentionErr is a retention failure that did not fail the run.
	RetentionErr error

	// FailedStage is the stage whose error Run returned, or empty.
	FailedStage Stage
}

// RunError is a failure of one stage.
type RunError struct {
	Stage Stage
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("backup %s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// RetryKind reports the classification of the underlying failure.
func (e *RunError) RetryKind() retry.Kind { return retry.Classify(e.Err) }

// Orchestrator runs backups.
type Orchestrator struct {
	config      Config
	credentials netdisk.TokenSource
	newRemote   func(netdisk.TokenSource) (Remote, error)
	archiver    Archiver
	observer    Observer
	clock       clock.Clock
	logger      *slog.Logger
}

// New validates options and returns an Orchestrator.
func New(options Options) (*Orchestrator, error) {
	config := options.Config
	if config.LocalDir == "" {
		return nil, errors.New("backup: local directory is required")
	}
	if err := netdisk.ValidateRemoteDir(config.RemoteDir); err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = chunk.DefaultSize
	}
	if err := chunk.ValidateSize(config.ChunkSize); err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}
	if config.Digest == nil {
		config.Digest = digest.Default
	}
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	if options.Credentials == nil {
		return nil, errors.New("backup: Credentials is required")
	}
	if options.NewRemote == nil {
		return nil, errors.New("backup: NewRemote is required")
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	if config.Retry.Clock == nil {
		config.Retry.Clock = clk
	}
	if config.Retry.Logger == nil {
		config.Retry.Logger = logger
	}
	archiver := options.Archiver
	if archiver == nil {
		archiver = &archive.Archiver{Format: config.Format, Logger: logger}
	}
	observer := options.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	return &Orchestrator{
		config:      config,
		credentials: options.Credentials,
		newRemote:   options.NewRemote,
		archiver:    archiver,
		observer:    observer,
		clock:       clk,
		logger:      logger,
	}, nil
}

// Run performs one backup. The returned Report is never nil; on
// failure it describes the stages that completed and the error is a
// *RunError naming the stage that failed.
func (o *Orchestrator) Run(ctx context.Context) (report *Report, err error) {
	report = &Report{
		RunID:   uuid.NewString(),
		Started: o.clock.Now(),
	}
	logger := o.logger.With("run_id", report.RunID)
	defer func() {
		report.Duration = o.clock.Now().Sub(report.Started)
		var runErr *RunError
		if errors.As(err, &runErr) {
			report.FailedStage = runErr.Stage
			// The uploader reports its own failures.
			if runErr.Stage != StageUpload {
				o.observer.OnError(retry.Classify(runErr.Err), runErr.Error())
			}
		}
	}()

	fail := func(stage Stage, cause error) error {
		return &RunError{Stage: stage, Err: cause}
	}

	localDir, err := filepath.Abs(o.config.LocalDir)
	if err != nil {
		return report, fail(StageArchive, err)
	}
	info, err := os.Stat(localDir)
	if err != nil {
		return report, fail(StageArchive, fmt.Errorf("local directory: %w", err))
	}
	if !info.IsDir() {
		return report, fail(StageArchive, fmt.Errorf("local directory %s is not a directory", localDir))
	}

	o.observer.OnStage(StageCredential)
	if _, err := o.credentials.AccessToken(ctx); err != nil {
		return report, fail(StageCredential, err)
	}
	remote, err := o.newRemote(o.credentials)
	if err != nil {
		return report, fail(StageCredential, err)
	}

	o.observer.OnStage(StageArchive)
	outputDir := o.config.TempDir
	if outputDir == "" {
		outputDir = filepath.Dir(localDir)
	}
	outputPath := filepath.Join(outputDir, archive.ArtifactName(localDir, o.clock.Now(), o.config.Format))
	artifact, err := o.archiver.Compress(ctx, localDir, outputPath)
	if err != nil {
		return report, fail(StageArchive, err)
	}
	report.Artifact = artifact
	defer o.cleanup(logger, artifact)
	logger.Info("artifact ready", "name", artifact.Name, "size", humanize.IBytes(uint64(artifact.Size)))

	o.observer.OnStage(StageManifest)
	manifest, err := chunk.ComputeFile(artifact.Path, o.config.ChunkSize, o.config.Digest)
	if err != nil {
		return report, fail(StageManifest, err)
	}
	report.Manifest = manifest
	report.Blocks = manifest.Len()

	o.observer.OnStage(StageUpload)
	uploader := &upload.Uploader{
		Remote:      remote,
		Retry:       o.config.Retry,
		Parallelism: o.config.Parallelism,
		Observer:    o.observer,
		Logger:      logger,
	}
	result, err := uploader.Upload(ctx, artifact.Path, netdisk.Join(o.config.RemoteDir, artifact.Name), manifest)
	if err != nil {
		return report, fail(StageUpload, err)
	}
	report.Remote = result

	o.observer.OnStage(StageRetention)
	manager := &retention.Manager{
		Remote: remote,
		Suffix: o.config.Format.Suffix(),
		Retry:  o.config.Retry,
		Logger: logger,
	}
	deleted, err := manager.Reconcile(ctx, o.config.RemoteDir, o.config.MaxBackups)
	if err != nil {
		report.RetentionErr = err
		o.observer.OnError(retry.Classify(err), err.Error())
		logger.Warn("retention failed; backup was uploaded", "error", err)
	}
	report.Deleted = deleted

	logger.Info("backup complete",
		"remote", result.Path,
		"blocks", report.Blocks,
		"deleted_sets", len(deleted),
	)
	return report, nil
}

// cleanup removes the local archive. It runs exactly once per run
// that created one.
func (o *Orchestrator) cleanup(logger *slog.Logger, artifact *archive.Artifact) {
	o.observer.OnStage(StageCleanup)
	if err := os.Remove(artifact.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("removing local archive failed", "path", artifact.Path, "error", err)
		return
	}
	logger.Debug("local archive removed", "path", artifact.Path)
}
