// Package observability provides Prometheus metrics and OpenTelemetry spans
// for transcription batches.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// File outcomes used as the status label.
const (
	StatusTranscribed = "transcribed"
	StatusSkipped     = "skipped"
	StatusFailed      = "failed"
)

// Drop reasons used as the reason label.
const (
	DropNoOverlap = "no_overlap"
	DropBlank     = "blank"
)

// Metrics holds all Prometheus metrics for the transcription pipeline.
// A nil *Metrics records nothing.
type Metrics struct {
	FilesProcessedTotal   *prometheus.CounterVec
	StageSeconds          *prometheus.HistogramVec
	FragmentsDroppedTotal *prometheus.CounterVec
	FinalRecords          prometheus.Histogram
	BatchesTotal          *prometheus.CounterVec
}

// NewMetrics creates the pipeline metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FilesProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scribe_files_processed_total",
				Help: "Audio files handled, by outcome",
			},
			[]string{"status"},
		),
		StageSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scribe_stage_seconds",
				Help:    "Latency per pipeline stage",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"stage"},
		),
		FragmentsDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scribe_fragments_dropped_total",
				Help: "Recognized fragments discarded during alignment",
			},
			[]string{"reason"},
		),
		FinalRecords: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scribe_final_records",
				Help:    "Fused records per transcript",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scribe_batches_total",
				Help: "Batch runs, by terminal outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordFile records one file outcome.
func (m *Metrics) RecordFile(status string) {
	if m == nil {
		return
	}
	m.FilesProcessedTotal.WithLabelValues(status).Inc()
}

// RecordFiles records n files with the same outcome.
func (m *Metrics) RecordFiles(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FilesProcessedTotal.WithLabelValues(status).Add(float64(n))
}

// RecordStage records the latency of a pipeline stage.
func (m *Metrics) RecordStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordAlignment records dropped fragments and the size of the final transcript.
func (m *Metrics) RecordAlignment(droppedNoOverlap, droppedBlank, finalRecords int) {
	if m == nil {
		return
	}
	m.FragmentsDroppedTotal.WithLabelValues(DropNoOverlap).Add(float64(droppedNoOverlap))
	m.FragmentsDroppedTotal.WithLabelValues(DropBlank).Add(float64(droppedBlank))
	m.FinalRecords.Observe(float64(finalRecords))
}

// RecordBatch records a terminal batch outcome.
func (m *Metrics) RecordBatch(outcome string) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(outcome).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
