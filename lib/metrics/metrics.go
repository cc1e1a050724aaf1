// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics records backup runs as Prometheus metrics.
//
// panbackup is a short-lived process, usually started by cron or a
// systemd timer, so nothing scrapes it. Instead the metrics are
// written after each run to a file for the node exporter's textfile
// collector (--collector.textfile.directory), which republishes them.
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/panbackup/lib/backup"
	"github.com/bureau-foundation/panbackup/lib/retry"
	"github.com/bureau-foundation/panbackup/lib/version"
)

// Namespace prefixes every metric name.
const Namespace = "panbackup"

// Recorder is a backup.Observer that also records run outcomes. It
// owns its registry so tests and repeated runs never collide with the
// global one.
type Recorder struct {
	registry *prometheus.Registry

	blocksUploaded prometheus.Counter
	errors         *prometheus.CounterVec
	stages         *prometheus.CounterVec
	runs           *prometheus.CounterVec
	lastSuccess    prometheus.Gauge
	lastRun        prometheus.Gauge
	lastDuration   prometheus.Gauge
	artifactBytes  prometheus.Gauge
	artifactBlocks prometheus.Gauge
	setsDeleted    prometheus.Counter
	buildInfo      *prometheus.GaugeVec

	mu sync.Mutex
}

// NewRecorder creates a Recorder with every metric registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		blocksUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "blocks_uploaded_total",
			Help:      "Blocks acknowledged by the storage service",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Run failures by retry classification",
		}, []string{"kind"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stages_started_total",
			Help:      "Run stages started, by stage",
		}, []string{"stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Completed runs by result and failed stage",
		}, []string{"result", "stage"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_success",
			Help:      "1 if the most recent run succeeded, 0 otherwise",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the most recent run started",
		}),
		lastDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the most recent run",
		}),
		artifactBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_artifact_bytes",
			Help:      "Size of the most recent archive",
		}),
		artifactBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_artifact_blocks",
			Help:      "Block count of the most recent archive",
		}),
		setsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "backup_sets_deleted_total",
			Help:      "Backup sets removed by retention",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "build_info",
			Help:      "Build version, always 1",
		}, []string{"version"}),
	}
	r.registry.MustRegister(
		r.blocksUploaded, r.errors, r.stages, r.runs,
		r.lastSuccess, r.lastRun, r.lastDuration,
		r.artifactBytes, r.artifactBlocks, r.setsDeleted, r.buildInfo,
	)
	r.buildInfo.WithLabelValues(version.Info()).Set(1)
	return r
}

// Registry returns the registry holding the recorder's metrics.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) OnProgress(int, int) {
	r.blocksUploaded.Inc()
}

func (r *Recorder) OnError(kind retry.Kind, _ string) {
	r.errors.WithLabelValues(kind.String()).Inc()
}

func (r *Recorder) OnStage(stage backup.Stage) {
	r.stages.WithLabelValues(string(stage)).Inc()
}

// RecordRun records the outcome of a run. report may be partial when
// err is non-nil.
func (r *Recorder) RecordRun(report *backup.Report, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if report == nil {
		report = &backup.Report{}
	}
	stage := ""
	var runErr *backup.RunError
	if errors.As(err, &runErr) {
		stage = string(runErr.Stage)
	}
	if err != nil {
		r.runs.WithLabelValues("failure", stage).Inc()
		r.lastSuccess.Set(0)
	} else {
		r.runs.WithLabelValues("success", "").Inc()
		r.lastSuccess.Set(1)
	}

	if !report.Started.IsZero() {
		r.lastRun.Set(float64(report.Started.Unix()))
	}
	r.lastDuration.Set(report.Duration.Seconds())
	if report.Artifact != nil {
		r.artifactBytes.Set(float64(report.Artifact.Size))
	}
	r.artifactBlocks.Set(float64(report.Blocks))
	r.setsDeleted.Add(float64(len(report.Deleted)))
}

// WriteTextfile writes every metric to path in the Prometheus text
// format. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
