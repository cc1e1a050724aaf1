// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backup

import (
	"log/slog"
	"sync"

	"github.com/bureau-foundation/panbackup/lib/retry"
	"github.com/bureau-foundation/panbackup/lib/upload"
)

// Stage names a step of a run.
type Stage string

const (
	StageCredential Stage = "credential"
	StageArchive    Stage = "archive"
	StageManifest   Stage = "manifest"
	StageUpload     Stage = "upload"
	StageRetention  Stage = "retention"
	StageCleanup    Stage = "cleanup"
)

// Observer receives run progress. Block progress may arrive from
// several goroutines at once.
type Observer interface {
	upload.Observer

	// OnStage is called when a stage begins.
	OnStage(stage Stage)
}

// NopObserver ignores every event.
type NopObserver struct {
	upload.NopObserver
}

func (NopObserver) OnStage(Stage) {}

// MultiObserver fans every event out to each of its observers in
// order.
type MultiObserver []Observer

func (m MultiObserver) OnProgress(blockIndex, totalBlocks int) {
	for _, observer := range m {
		observer.OnProgress(blockIndex, totalBlocks)
	}
}

func (m MultiObserver) OnError(kind retry.Kind, detail string) {
	for _, observer := range m {
		observer.OnError(kind, detail)
	}
}

func (m MultiObserver) OnStage(stage Stage) {
	for _, observer := range m {
		observer.OnStage(stage)
	}
}

// LogObserver writes run events to a structured logger. Block
// progress is logged at debug level, with an info record at every
// tenth of the upload.
type LogObserver struct {
	Logger *slog.Logger

	mu        sync.Mutex
	completed int
	lastTenth int
}

// NewLogObserver returns a LogObserver writing to logger.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{Logger: logger}
}

func (l *LogObserver) OnProgress(blockIndex, totalBlocks int) {
	l.mu.Lock()
	l.completed++
	completed := l.completed
	tenth := completed * 10 / totalBlocks
	report := tenth > l.lastTenth
	if report {
		l.lastTenth = tenth
	}
	l.mu.Unlock()

	l.Logger.Debug("block uploaded", "block", blockIndex, "total", totalBlocks)
	if report {
		l.Logger.Info("upload progress", "completed", completed, "total", totalBlocks, "percent", tenth*10)
	}
}

func (l *LogObserver) OnError(kind retry.Kind, detail string) {
	l.Logger.Error("backup error", "kind", kind.String(), "detail", detail)
}

func (l *LogObserver) OnStage(stage Stage) {
	if stage == StageUpload {
		l.mu.Lock()
		l.completed, l.lastTenth = 0, 0
		l.mu.Unlock()
	}
	l.Logger.Info("stage started", "stage", string(stage))
}
