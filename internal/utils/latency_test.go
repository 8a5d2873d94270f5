package utils

import "testing"

func TestLatencyTrackerStats(t *testing.T) {
	tracker := NewLatencyTracker(100)
	if tracker.Mean() != 0 || tracker.Percentile(95) != 0 {
		t.Fatalf("empty tracker must report zeros")
	}

	for i := 1; i <= 100; i++ {
		tracker.Observe(float64(i))
	}

	if tracker.Count() != 100 {
		t.Fatalf("expected 100 samples, got %d", tracker.Count())
	}
	if mean := tracker.Mean(); mean != 50.5 {
		t.Fatalf("expected mean 50.5, got %f", mean)
	}
	if p95 := tracker.Percentile(95); p95 < 94 || p95 > 96 {
		t.Fatalf("expected p95 near 95, got %f", p95)
	}
	if p0 := tracker.Percentile(0); p0 != 1 {
		t.Fatalf("expected p0 to be the minimum, got %f", p0)
	}
	if p100 := tracker.Percentile(100); p100 != 100 {
		t.Fatalf("expected p100 to be the maximum, got %f", p100)
	}
}

func TestLatencyTrackerBounded(t *testing.T) {
	tracker := NewLatencyTracker(10)
	for i := 0; i < 50; i++ {
		tracker.Observe(float64(i))
	}
	if tracker.Count() != 10 {
		t.Fatalf("tracker must cap at 10 samples, got %d", tracker.Count())
	}
	// Oldest samples dropped: the window is 40..49.
	if min := tracker.Percentile(0); min != 40 {
		t.Fatalf("expected oldest retained sample 40, got %f", min)
	}
}

func TestLatencyTrackerReset(t *testing.T) {
	tracker := NewLatencyTracker(10)
	tracker.Observe(5)
	tracker.Reset()
	if tracker.Count() != 0 || tracker.Mean() != 0 {
		t.Fatalf("reset must clear all samples")
	}
}
