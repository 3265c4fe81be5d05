package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runsActive    prometheus.Gauge
	outputBytes   *prometheus.CounterVec
	outputChunks  *prometheus.CounterVec
	snapshotReads *prometheus.CounterVec
	snapshotRows  prometheus.Gauge
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder whose collectors are registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattas_analysis_runs_total",
				Help: "Analysis runs by trigger and result (ok, nonzero_exit, spawn_failed, canceled)",
			},
			[]string{"trigger", "result"},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pattas_analysis_run_duration_seconds",
				Help:    "Wall time of analysis runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
			},
			[]string{"trigger"},
		),
		runsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "pattas_analysis_runs_active",
				Help: "Analysis runs currently streaming",
			},
		),
		outputBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattas_analysis_output_bytes_total",
				Help: "Bytes read from the analysis process by channel",
			},
			[]string{"channel"},
		),
		outputChunks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattas_analysis_output_chunks_total",
				Help: "Chunks read from the analysis process by channel",
			},
			[]string{"channel"},
		),
		snapshotReads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattas_snapshot_reads_total",
				Help: "Snapshot reads by result (ok, empty, error)",
			},
			[]string{"result"},
		),
		snapshotRows: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "pattas_snapshot_rows",
				Help: "Ticker rows in the last snapshot served",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattas_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pattas_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordRun records a finished run.
func (r *Recorder) RecordRun(trigger, result string, d time.Duration) {
	r.runsTotal.WithLabelValues(trigger, result).Inc()
	r.runDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

// RunStarted bumps the active runs gauge; RunFinished drops it.
func (r *Recorder) RunStarted() { r.runsActive.Inc() }
func (r *Recorder) RunFinished() { r.runsActive.Dec() }

// RecordOutput records bytes and chunk count read from one channel.
func (r *Recorder) RecordOutput(channel string, bytes int64, chunks int) {
	r.outputBytes.WithLabelValues(channel).Add(float64(bytes))
	r.outputChunks.WithLabelValues(channel).Add(float64(chunks))
}

// RecordSnapshotRead records a snapshot read and, on success, its row count.
func (r *Recorder) RecordSnapshotRead(result string, rows int) {
	r.snapshotReads.WithLabelValues(result).Inc()
	if result == "ok" {
		r.snapshotRows.Set(float64(rows))
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
