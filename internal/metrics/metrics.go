package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription poller
type Metrics struct {
	// Poll loop metrics
	PollAttempts        prometheus.Counter
	PollTransientErrors prometheus.Counter
	PollDuration        prometheus.Histogram
	ActiveJobs          prometheus.Gauge

	// Job outcome metrics
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobsTimedOut  prometheus.Counter

	// Reconstruction metrics
	Reconstructions       *prometheus.CounterVec
	SegmentsPerTranscript prometheus.Histogram
	ValidationFailures    prometheus.Counter

	// Persistence metrics
	TranscriptsSaved prometheus.Counter
}

// NewMetrics creates and registers all metrics on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics and registers them on reg
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Poll loop metrics
		PollAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_poll_attempts_total",
			Help: "Total number of job status poll attempts",
		}),
		PollTransientErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_poll_transient_errors_total",
			Help: "Total number of poll attempts that failed with a transient error",
		}),
		PollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetscribe_poll_duration_seconds",
			Help:    "Duration of job status requests",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		}),
		ActiveJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetscribe_active_jobs",
			Help: "Current number of jobs being polled",
		}),

		// Job outcome metrics
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_jobs_completed_total",
			Help: "Total number of jobs that finished with a transcript",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_jobs_failed_total",
			Help: "Total number of jobs that finished in error",
		}),
		JobsTimedOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_jobs_timed_out_total",
			Help: "Total number of jobs abandoned after the poll attempt budget",
		}),

		// Reconstruction metrics
		Reconstructions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetscribe_reconstructions_total",
			Help: "Total number of transcript reconstructions by strategy",
		}, []string{"strategy"}),
		SegmentsPerTranscript: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetscribe_transcript_segments",
			Help:    "Number of speaker segments per reconstructed transcript",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 to ~512 segments
		}),
		ValidationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_validation_failures_total",
			Help: "Total number of reconstructions that diverged from the canonical transcript",
		}),

		// Persistence metrics
		TranscriptsSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_transcripts_saved_total",
			Help: "Total number of transcripts written to the store",
		}),
	}
}

// RecordPollAttempt records one poll attempt and its duration
func (m *Metrics) RecordPollAttempt(durationSeconds float64) {
	m.PollAttempts.Inc()
	m.PollDuration.Observe(durationSeconds)
}

// RecordPollTransientError increments the transient error counter
func (m *Metrics) RecordPollTransientError() {
	m.PollTransientErrors.Inc()
}

// SetActiveJobs sets the current number of polled jobs
func (m *Metrics) SetActiveJobs(count int) {
	m.ActiveJobs.Set(float64(count))
}

// RecordJobCompleted increments the completed jobs counter
func (m *Metrics) RecordJobCompleted() {
	m.JobsCompleted.Inc()
}

// RecordJobFailed increments the failed jobs counter
func (m *Metrics) RecordJobFailed() {
	m.JobsFailed.Inc()
}

// RecordJobTimedOut increments the timed out jobs counter
func (m *Metrics) RecordJobTimedOut() {
	m.JobsTimedOut.Inc()
}

// RecordReconstruction records a reconstruction and its segment count
func (m *Metrics) RecordReconstruction(strategy string, segmentCount int) {
	m.Reconstructions.WithLabelValues(strategy).Inc()
	m.SegmentsPerTranscript.Observe(float64(segmentCount))
}

// RecordValidationFailure increments the validation failures counter
func (m *Metrics) RecordValidationFailure() {
	m.ValidationFailures.Inc()
}

// RecordTranscriptSaved increments the saved transcripts counter
func (m *Metrics) RecordTranscriptSaved() {
	m.TranscriptsSaved.Inc()
}
