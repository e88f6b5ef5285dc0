package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of one process on a private registry.
// A one-shot run has no scrape endpoint, so the registry is flushed with
// WriteTextfile for the node_exporter textfile collector.
type Metrics struct {
	Registry *prometheus.Registry

	// RunsTotal counts finished runs by outcome (removed, not_found, ...)
	RunsTotal *prometheus.CounterVec

	RenameFailuresTotal prometheus.Counter
	DeleteFailuresTotal prometheus.Counter

	// BytesRemovedTotal and FilesRemovedTotal are measured on the trash
	// tree right before it is deleted
	BytesRemovedTotal prometheus.Counter
	FilesRemovedTotal prometheus.Counter

	LastRunTimestamp prometheus.Gauge
	RunDuration      prometheus.Histogram
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RunsTotal: NewCounterVec(
			"forcecleanup_runs_total",
			"Total cleanup runs by outcome.",
			[]string{"outcome"},
		),
		RenameFailuresTotal: NewCounter(
			"forcecleanup_rename_failures_total",
			"Total failed renames of the target onto the trash path.",
		),
		DeleteFailuresTotal: NewCounter(
			"forcecleanup_delete_failures_total",
			"Total failed recursive deletes of the trash path.",
		),
		BytesRemovedTotal: NewCounter(
			"forcecleanup_bytes_removed_total",
			"Total bytes of regular files removed with the trash tree.",
		),
		FilesRemovedTotal: NewCounter(
			"forcecleanup_files_removed_total",
			"Total regular files removed with the trash tree.",
		),
		LastRunTimestamp: NewGauge(
			"forcecleanup_last_run_timestamp",
			"Timestamp of the last cleanup run (Unix epoch seconds).",
		),
		RunDuration: NewDurationHistogram(
			"forcecleanup_run_duration_seconds",
			"Duration of cleanup runs in seconds.",
		),
	}

	m.Registry.MustRegister(
		m.RunsTotal,
		m.RenameFailuresTotal,
		m.DeleteFailuresTotal,
		m.BytesRemovedTotal,
		m.FilesRemovedTotal,
		m.LastRunTimestamp,
		m.RunDuration,
	)

	return m
}

// RecordRun updates the per-run collectors
func (m *Metrics) RecordRun(outcome string, started time.Time, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.LastRunTimestamp.Set(float64(started.Unix()))
	m.RunDuration.Observe(elapsed.Seconds())
}

// RecordRemoved adds the measured size of a deleted trash tree
func (m *Metrics) RecordRemoved(bytes, files int64) {
	m.BytesRemovedTotal.Add(float64(bytes))
	m.FilesRemovedTotal.Add(float64(files))
}

// WriteTextfile writes the registry in text exposition format to path,
// creating the parent directory when needed
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
