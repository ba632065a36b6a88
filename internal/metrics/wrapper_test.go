package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"credit-risk/internal/features"
	"credit-risk/internal/ml"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var (
	_ ml.MetricsInterface     = (*MetricsWrapper)(nil)
	_ features.MetricsTracker = (*MetricsWrapper)(nil)
	_ MetricsHistogram        = (*HistogramWrapper)(nil)
	_ MetricsGauge            = (*GaugeWrapper)(nil)
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_Submissions(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.Submissions("form").Inc()
	wrapper.Submissions("form").Inc()
	wrapper.Submissions("api").Inc()

	if v := testutil.ToFloat64(metrics.SubmissionsTotal.WithLabelValues("form")); v != 2 {
		t.Errorf("Expected 2 form submissions, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.SubmissionsTotal.WithLabelValues("api")); v != 1 {
		t.Errorf("Expected 1 api submission, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.SubmissionsTotal.WithLabelValues("ws")); v != 0 {
		t.Errorf("Expected 0 ws submissions, got %f", v)
	}
}

func TestMetricsWrapper_Rejections(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if rate := metrics.GetRejectionRate(registry); rate != 0 {
		t.Errorf("Expected rejection rate 0 before any submission, got %f", rate)
	}

	for i := 0; i < 4; i++ {
		wrapper.Submissions("form").Inc()
	}
	wrapper.Rejected(ReasonUnknownCategory).Inc()

	if v := testutil.ToFloat64(metrics.SubmissionsRejected.WithLabelValues(ReasonUnknownCategory)); v != 1 {
		t.Errorf("Expected 1 unknown category rejection, got %f", v)
	}
	if rate := metrics.GetRejectionRate(registry); rate != 0.25 {
		t.Errorf("Expected rejection rate 0.25, got %f", rate)
	}
}

func TestMetricsWrapper_MLInterface(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.MLPredictionsInc("good")
	wrapper.MLPredictionsInc("bad")
	wrapper.MLPredictionsInc("bad")
	wrapper.MLFailuresInc()
	wrapper.MLSchemaMismatchInc()
	wrapper.MLTimeoutsInc()
	wrapper.MLModelAgeSet(3600)
	wrapper.MLLatencyObserve(0.002)
	wrapper.MLPredictionScoresObserve(0.4)

	tests := []struct {
		name      string
		collector prometheus.Collector
		want      float64
	}{
		{"good predictions", metrics.MLPredictions.WithLabelValues("good"), 1},
		{"bad predictions", metrics.MLPredictions.WithLabelValues("bad"), 2},
		{"failures", metrics.MLFailures, 1},
		{"schema mismatches", metrics.MLSchemaMismatches, 1},
		{"timeouts", metrics.MLTimeouts, 1},
		{"model age", metrics.MLModelAge, 3600},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.collector); got != tt.want {
			t.Errorf("%s: expected %f, got %f", tt.name, tt.want, got)
		}
	}

	if n := testutil.CollectAndCount(metrics.MLLatency); n != 1 {
		t.Errorf("Expected latency histogram to be collected once, got %d", n)
	}
	if n := testutil.CollectAndCount(metrics.MLPredictionScores); n != 1 {
		t.Errorf("Expected score histogram to be collected once, got %d", n)
	}
}

func TestMetricsWrapper_FeatureTracker(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	_, err := features.DefaultSchema().EncodeWithMetrics(features.DefaultProfile(), wrapper)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	bad := features.DefaultProfile()
	bad.Housing = "castle"
	if _, err := features.DefaultSchema().EncodeWithMetrics(bad, wrapper); err == nil {
		t.Fatal("expected encode error for unknown housing")
	}

	if v := testutil.ToFloat64(metrics.FeatureErrors); v != 1 {
		t.Errorf("Expected 1 feature error, got %f", v)
	}
	wrapper.FeatureCalcDuration(15 * time.Microsecond)
	if n := testutil.CollectAndCount(metrics.FeatureEncodings); n != 1 {
		t.Errorf("Expected encoding histogram to be collected once, got %d", n)
	}
}

func TestMetricsWrapper_ModelState(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.ModelLoaded(true)
	if v := testutil.ToFloat64(metrics.MLModelLoaded); v != 1 {
		t.Errorf("Expected loaded gauge 1, got %f", v)
	}
	wrapper.ModelLoaded(false)
	if v := testutil.ToFloat64(metrics.MLModelLoaded); v != 0 {
		t.Errorf("Expected loaded gauge 0, got %f", v)
	}

	age := wrapper.ModelAge()
	age.Set(10)
	age.Add(5)
	if v := testutil.ToFloat64(metrics.MLModelAge); v != 15 {
		t.Errorf("Expected model age 15, got %f", v)
	}
}

func TestMetricsWrapper_Journal(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.JournalWrite(nil)
	wrapper.JournalWrite(nil)
	wrapper.JournalWrite(errors.New("disk full"))

	if v := testutil.ToFloat64(metrics.JournalWrites); v != 2 {
		t.Errorf("Expected 2 journal writes, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.JournalErrors); v != 1 {
		t.Errorf("Expected 1 journal error, got %f", v)
	}
}

func TestHistogramWrapper(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	hw := &HistogramWrapper{metrics.MLLatency}
	hw.Observe(0.01)
	hw.Observe(0.02)

	if n := testutil.CollectAndCount(metrics.MLLatency); n != 1 {
		t.Errorf("Expected histogram to be collected once, got %d", n)
	}
}

func TestMetricsWrapper_ConcurrentAccess(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	const numGoroutines = 10
	const numOperations = 100

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				wrapper.Submissions("ws").Inc()
				wrapper.MLPredictionsInc("good")
				wrapper.MLLatencyObserve(0.001)
			}
		}()
	}
	wg.Wait()

	want := float64(numGoroutines * numOperations)
	if v := testutil.ToFloat64(metrics.SubmissionsTotal.WithLabelValues("ws")); v != want {
		t.Errorf("Expected %f submissions, got %f", want, v)
	}
	if v := testutil.ToFloat64(metrics.MLPredictions.WithLabelValues("good")); v != want {
		t.Errorf("Expected %f predictions, got %f", want, v)
	}
}
