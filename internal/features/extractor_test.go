package features

import (
	"math"
	"testing"
	"time"

	"github.com/pulsestack/pulse-sentinel/internal/models"
)

func sampleAt(source string, ts time.Time, latency float64) models.MeasurementSample {
	return models.MeasurementSample{
		Source:     source,
		Timestamp:  ts,
		LatencyMs:  latency,
		StatusCode: 200,
		Success:    true,
	}
}

func TestColdStartLowConfidence(t *testing.T) {
	extractor := NewExtractor(10, 60, 0)
	start := time.Now()

	for i := 0; i < 9; i++ {
		vec := extractor.Ingest(sampleAt("api-a", start.Add(time.Duration(i)*time.Second), 100))
		if !vec.LowConfidence {
			t.Fatalf("sample %d: expected low-confidence vector before short window fills", i+1)
		}
	}

	vec := extractor.Ingest(sampleAt("api-a", start.Add(10*time.Second), 100))
	if vec.LowConfidence {
		t.Fatalf("expected full confidence once short window holds 10 samples")
	}
}

func TestSteadySeriesFeatures(t *testing.T) {
	extractor := NewExtractor(10, 60, 0)
	start := time.Now()

	var vec models.FeatureVector
	for i := 0; i < 80; i++ {
		// Strictly increasing, near-identical latencies.
		latency := 100 + float64(i)*0.01
		vec = extractor.Ingest(sampleAt("api-a", start.Add(time.Duration(i)*15*time.Second), latency))
	}

	if math.Abs(vec.RateOfChange) > 0.001 {
		t.Fatalf("rate of change should converge to ~0, got %f", vec.RateOfChange)
	}
	if math.Abs(vec.ZScore) > 3 {
		t.Fatalf("z-score should stay small on a steady series, got %f", vec.ZScore)
	}
	if math.Abs(vec.PctDeviation) > 1 {
		t.Fatalf("percent deviation should stay small on a steady series, got %f", vec.PctDeviation)
	}
}

func TestZScoreSpike(t *testing.T) {
	extractor := NewExtractor(10, 60, 0)
	start := time.Now()

	for i := 0; i < 60; i++ {
		extractor.Ingest(sampleAt("api-a", start.Add(time.Duration(i)*time.Second), 100+float64(i%5)))
	}
	vec := extractor.Ingest(sampleAt("api-a", start.Add(61*time.Second), 1000))

	if vec.ZScore < 3 {
		t.Fatalf("expected large z-score for a 10x spike, got %f", vec.ZScore)
	}
	if vec.RateOfChange < 5 {
		t.Fatalf("expected large rate of change for a spike, got %f", vec.RateOfChange)
	}
}

func TestRateOfChangeFirstSample(t *testing.T) {
	extractor := NewExtractor(10, 60, 0)
	vec := extractor.Ingest(sampleAt("api-a", time.Now(), 250))
	if vec.RateOfChange != 0 {
		t.Fatalf("first sample has no prior, rate of change must be 0, got %f", vec.RateOfChange)
	}
}

func TestSourcesAreIndependent(t *testing.T) {
	extractor := NewExtractor(10, 60, 0)
	start := time.Now()

	for i := 0; i < 20; i++ {
		extractor.Ingest(sampleAt("api-a", start.Add(time.Duration(i)*time.Second), 100))
	}
	vec := extractor.Ingest(sampleAt("api-b", start.Add(30*time.Second), 5000))

	if !vec.LowConfidence {
		t.Fatalf("first sample for a new source must be low-confidence")
	}
	if vec.RateOfChange != 0 {
		t.Fatalf("rate of change must not leak across sources, got %f", vec.RateOfChange)
	}
	if got := extractor.SampleCount("api-b"); got != 1 {
		t.Fatalf("expected 1 buffered sample for api-b, got %d", got)
	}
}

func TestLongWindowEviction(t *testing.T) {
	extractor := NewExtractor(10, 60, 0)
	start := time.Now()

	for i := 0; i < 100; i++ {
		extractor.Ingest(sampleAt("api-a", start.Add(time.Duration(i)*time.Second), float64(i)))
	}
	if got := extractor.SampleCount("api-a"); got != 60 {
		t.Fatalf("long window must cap at 60 samples, got %d", got)
	}
}

func TestTrainingWindowExcludesLowConfidence(t *testing.T) {
	extractor := NewExtractor(10, 60, 0)
	start := time.Now()

	for i := 0; i < 30; i++ {
		extractor.Ingest(sampleAt("api-a", start.Add(time.Duration(i)*time.Second), 100))
	}

	all := extractor.TrainingWindow(false)
	confident := extractor.TrainingWindow(true)
	if len(all) != 30 {
		t.Fatalf("expected 30 buffered vectors, got %d", len(all))
	}
	if len(confident) != 21 {
		t.Fatalf("expected 21 full-confidence vectors, got %d", len(confident))
	}
}
