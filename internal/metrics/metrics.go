// Package metrics provides Prometheus metrics collection for the credit risk form.
// It defines the submission, encoding and model metrics exposed on /metrics.
//
// The package covers form submissions and rejections, feature encoding, model
// inference (predictions by label, failures, latency, the bad-payer probability
// distribution) and model health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons used as the "reason" label on SubmissionsRejected.
const (
	ReasonInvalidField    = "invalid_field"
	ReasonOutOfRange      = "out_of_range"
	ReasonUnknownCategory = "unknown_category"
	ReasonSchemaMismatch  = "schema_mismatch"
	ReasonInference       = "inference_error"
	ReasonUnavailable     = "model_unavailable"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Submission metrics
	SubmissionsTotal    *prometheus.CounterVec // Submissions received, by channel (form, api, ws)
	SubmissionsRejected *prometheus.CounterVec // Submissions refused, by reason
	JournalWrites       prometheus.Counter     // Predictions written to the journal
	JournalErrors       prometheus.Counter     // Failed journal writes

	// ML and prediction metrics
	MLPredictions      *prometheus.CounterVec // Predictions made, by label
	MLFailures         prometheus.Counter     // Inference failures
	MLSchemaMismatches prometheus.Counter     // Rows rejected before reaching the classifier
	MLModelAge         prometheus.Gauge       // Age of the loaded model artifact in seconds
	MLModelLoaded      prometheus.Gauge       // 1 when a model is loaded
	MLLatency          prometheus.Histogram   // Evaluation latency in seconds
	MLPredictionScores prometheus.Histogram   // Distribution of bad-payer probabilities
	MLTimeouts         prometheus.Counter     // Subprocess inference timeouts

	// Feature encoding metrics
	FeatureEncodings prometheus.Histogram // Encoding duration in seconds
	FeatureErrors    prometheus.Counter   // Failed encodings
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_submissions_total",
			Help: "Total number of applicant profiles submitted",
		}, []string{"channel"}),
		SubmissionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_submissions_rejected_total",
			Help: "Total number of submissions rejected, by reason",
		}, []string{"reason"}),
		JournalWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_journal_writes_total",
			Help: "Total number of predictions written to the journal",
		}),
		JournalErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_journal_errors_total",
			Help: "Total number of failed journal writes",
		}),
		MLPredictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of ML predictions made",
		}, []string{"label"}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of ML prediction failures",
		}),
		MLSchemaMismatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_schema_mismatches_total",
			Help: "Total number of feature rows rejected by the schema check",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the current ML model in seconds",
		}),
		MLModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_loaded",
			Help: "Whether a model is loaded (1) or the service runs without one (0)",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "ML prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of bad-payer probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		MLTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_timeouts_total",
			Help: "Total number of ML prediction timeouts",
		}),
		FeatureEncodings: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "feature_encoding_duration_seconds",
			Help:    "Duration of applicant profile encoding in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
		}),
		FeatureErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_errors_total",
			Help: "Total number of feature encoding errors",
		}),
	}
}

// SetModelLoaded flips the loaded gauge.
func (m *Metrics) SetModelLoaded(loaded bool) {
	if loaded {
		m.MLModelLoaded.Set(1)
		return
	}
	m.MLModelLoaded.Set(0)
}

// GetRejectionRate returns rejected over submitted across all channels and
// reasons, or 0 before the first submission.
func (m *Metrics) GetRejectionRate(gatherer prometheus.Gatherer) float64 {
	var submitted, rejected float64

	metricFamilies, err := gatherer.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "risk_submissions_total":
			for _, m := range mf.Metric {
				submitted += m.GetCounter().GetValue()
			}
		case "risk_submissions_rejected_total":
			for _, m := range mf.Metric {
				rejected += m.GetCounter().GetValue()
			}
		}
	}

	if submitted == 0 {
		return 0
	}
	return rejected / submitted
}
