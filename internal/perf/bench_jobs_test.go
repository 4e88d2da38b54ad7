package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/caravela-erp/caravela/internal/jobs"
)

func TestClosingSeedThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	// Routine seed passes over an already-registered month set are cheap.
	for i := 0; i < 40; i++ {
		tracker := metrics.Track("closing:seed")
		time.Sleep(10 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending tracker: %v", err)
		}
	}
	metrics.AddSeededMonths(3)

	// Inject failures to confirm they are counted and still propagated.
	for i := 0; i < 2; i++ {
		tracker := metrics.Track("closing:seed")
		time.Sleep(12 * time.Millisecond)
		if err := tracker.End(errors.New("pg unavailable")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "caravela_jobs_total", map[string]string{"job": "closing:seed", "status": "success"})
	failure := metricValue(t, families, "caravela_jobs_total", map[string]string{"job": "closing:seed", "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no seed executions recorded")
	}
	ratio := success / (success + failure)
	if ratio < 0.9 {
		t.Fatalf("seed success ratio too low: %f", ratio)
	}

	seeded := metricValue(t, families, "caravela_closing_months_seeded_total", nil)
	if seeded != 3 {
		t.Fatalf("expected 3 seeded months, got %f", seeded)
	}

	duration := histogramMean(t, families, "caravela_job_duration_seconds", map[string]string{"job": "closing:seed"})
	if duration > 2.0 {
		t.Fatalf("seed duration above budget: %f", duration)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
