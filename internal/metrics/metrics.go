// Package metrics provides Prometheus metrics for the job worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voxserve"

// Metrics holds the worker's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	JobsTotal         *prometheus.CounterVec
	JobsInFlight      prometheus.Gauge
	JobDuration       prometheus.Histogram
	InferenceDuration prometheus.Histogram
	AudioSources      *prometheus.CounterVec
	FetchedBytes      prometheus.Counter
	PollErrors        prometheus.Counter
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Jobs handled, by outcome and error kind",
		}, []string{"status", "kind"}),
		JobsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently being handled",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "End-to-end job handling time",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		InferenceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Time spent inside the transcription pipeline",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		AudioSources: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_sources_total",
			Help:      "Resolved audio inputs by source type",
		}, []string{"source"}),
		FetchedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetched_audio_bytes_total",
			Help:      "Bytes downloaded from audio URLs",
		}),
		PollErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_poll_errors_total",
			Help:      "Failed requests to the platform job endpoints",
		}),
	}
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.JobsInFlight.Inc()
}

func (m *Metrics) JobFinished(seconds float64, kind string) {
	if m == nil {
		return
	}
	m.JobsInFlight.Dec()
	m.JobDuration.Observe(seconds)

	status := "success"
	if kind != "" {
		status = "failure"
	}
	m.JobsTotal.WithLabelValues(status, kind).Inc()
}

func (m *Metrics) InferenceObserved(seconds float64) {
	if m == nil {
		return
	}
	m.InferenceDuration.Observe(seconds)
}

func (m *Metrics) SourceResolved(source string, fetched int64) {
	if m == nil {
		return
	}
	m.AudioSources.WithLabelValues(source).Inc()
	if fetched > 0 {
		m.FetchedBytes.Add(float64(fetched))
	}
}

func (m *Metrics) PollFailed() {
	if m == nil {
		return
	}
	m.PollErrors.Inc()
}
