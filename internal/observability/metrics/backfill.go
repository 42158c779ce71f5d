package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// BackfillMetrics contains Prometheus metrics for backfill runs.
type BackfillMetrics struct {
	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	Rows          *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	TableFailures *prometheus.CounterVec
	ObjectWrites  *prometheus.CounterVec
	RunsInFlight  prometheus.Gauge
}

// NewBackfillMetrics creates and registers the backfill metrics.
func NewBackfillMetrics(registry *prometheus.Registry) (*BackfillMetrics, error) {
	m := &BackfillMetrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backfill_runs_total",
			Help: "Total number of backfill runs by final status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backfill_run_duration_seconds",
			Help:    "Wall clock duration of backfill runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		Rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backfill_rows_total",
			Help: "Rows processed by table and outcome.",
		}, []string{"table", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backfill_stage_duration_seconds",
			Help:    "Duration of each per-row pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"stage"}),
		TableFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backfill_table_fetch_failures_total",
			Help: "Tables skipped because their rows could not be listed.",
		}, []string{"table"}),
		ObjectWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backfill_object_writes_total",
			Help: "Object store writes by backend and result.",
		}, []string{"backend", "result"}),
		RunsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backfill_runs_in_flight",
			Help: "Backfill runs currently executing.",
		}),
	}

	for _, c := range []prometheus.Collector{m.Runs, m.RunDuration, m.Rows, m.StageDuration, m.TableFailures, m.ObjectWrites, m.RunsInFlight} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register Backfill metrics: %w", err)
		}
	}
	return m, nil
}

// RunStarted increments the in-flight gauge.
func (m *BackfillMetrics) RunStarted() {
	m.RunsInFlight.Inc()
}

// RunFinished records a completed run.
func (m *BackfillMetrics) RunFinished(status string, durationSeconds float64) {
	m.RunsInFlight.Dec()
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRow counts one row outcome ("updated", "skipped" or "failed").
func (m *BackfillMetrics) RecordRow(table, outcome string) {
	m.Rows.WithLabelValues(table, outcome).Inc()
}

// ObserveStage records the duration of a pipeline stage.
func (m *BackfillMetrics) ObserveStage(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordTableFailure counts a table whose rows could not be listed.
func (m *BackfillMetrics) RecordTableFailure(table string) {
	m.TableFailures.WithLabelValues(table).Inc()
}

// RecordObjectWrite counts one object store write.
func (m *BackfillMetrics) RecordObjectWrite(backend string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.ObjectWrites.WithLabelValues(backend, result).Inc()
}
