package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

// MetricsWrapper adapts Metrics to the narrow interfaces the features, ml and
// web packages consume.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) Submissions(channel string) MetricsCounter {
	return &CounterWrapper{w.m.SubmissionsTotal.WithLabelValues(channel)}
}

func (w *MetricsWrapper) Rejected(reason string) MetricsCounter {
	return &CounterWrapper{w.m.SubmissionsRejected.WithLabelValues(reason)}
}

func (w *MetricsWrapper) JournalWrite(err error) {
	if err != nil {
		w.m.JournalErrors.Inc()
		return
	}
	w.m.JournalWrites.Inc()
}

func (w *MetricsWrapper) ModelLoaded(loaded bool) { w.m.SetModelLoaded(loaded) }

func (w *MetricsWrapper) RejectionRate(g prometheus.Gatherer) float64 {
	return w.m.GetRejectionRate(g)
}

func (w *MetricsWrapper) ModelAge() MetricsGauge {
	return &GaugeWrapper{w.m.MLModelAge}
}

// ml.MetricsInterface

func (w *MetricsWrapper) MLPredictionsInc(label string) { w.m.MLPredictions.WithLabelValues(label).Inc() }
func (w *MetricsWrapper) MLFailuresInc()                { w.m.MLFailures.Inc() }
func (w *MetricsWrapper) MLSchemaMismatchInc()          { w.m.MLSchemaMismatches.Inc() }
func (w *MetricsWrapper) MLLatencyObserve(v float64)    { w.m.MLLatency.Observe(v) }
func (w *MetricsWrapper) MLModelAgeSet(v float64)       { w.m.MLModelAge.Set(v) }
func (w *MetricsWrapper) MLTimeoutsInc()                { w.m.MLTimeouts.Inc() }

func (w *MetricsWrapper) MLPredictionScoresObserve(v float64) {
	w.m.MLPredictionScores.Observe(v)
}

// features.MetricsTracker

func (w *MetricsWrapper) FeatureErrorsInc() { w.m.FeatureErrors.Inc() }

func (w *MetricsWrapper) FeatureCalcDuration(d time.Duration) {
	w.m.FeatureEncodings.Observe(d.Seconds())
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type HistogramWrapper struct {
	h prometheus.Histogram
}

func (hw *HistogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}
