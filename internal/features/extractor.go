package features

import (
	"math"
	"sync"

	"github.com/pulsestack/pulse-sentinel/internal/models"
)

// epsilon guards divisions against zero-variance windows.
const epsilon = 0.01

// Extractor converts raw measurement samples into fixed-shape feature
// vectors, maintaining per-source rolling windows of recent latencies. It also
// buffers the vectors themselves so the retrainer can consume a trailing
// training window.
type Extractor struct {
	shortWindow int
	longWindow  int
	maxVectors  int

	mu      sync.Mutex
	sources map[string]*sourceWindow
	vectors []models.FeatureVector
}

type sourceWindow struct {
	latencies []float64 // most recent longWindow latencies, oldest first
	lastValue float64
	hasLast   bool
}

// NewExtractor creates an Extractor with the given window sizes. The vector
// buffer holds up to maxVectors recent vectors across all sources; older
// vectors are evicted oldest-first.
func NewExtractor(shortWindow, longWindow, maxVectors int) *Extractor {
	if shortWindow <= 0 {
		shortWindow = 10
	}
	if longWindow < shortWindow {
		longWindow = shortWindow
	}
	if maxVectors <= 0 {
		maxVectors = 4096
	}
	return &Extractor{
		shortWindow: shortWindow,
		longWindow:  longWindow,
		maxVectors:  maxVectors,
		sources:     make(map[string]*sourceWindow),
	}
}

// Ingest consumes one sample and returns its feature vector. Insufficient
// history never fails: the vector is computed from whatever samples exist and
// flagged low-confidence until the short window fills.
func (e *Extractor) Ingest(sample models.MeasurementSample) models.FeatureVector {
	e.mu.Lock()
	defer e.mu.Unlock()

	win, ok := e.sources[sample.Source]
	if !ok {
		win = &sourceWindow{latencies: make([]float64, 0, e.longWindow)}
		e.sources[sample.Source] = win
	}

	rateOfChange := 0.0
	if win.hasLast && win.lastValue != 0 {
		rateOfChange = (sample.LatencyMs - win.lastValue) / win.lastValue
	}

	win.latencies = append(win.latencies, sample.LatencyMs)
	if len(win.latencies) > e.longWindow {
		copy(win.latencies[0:], win.latencies[1:])
		win.latencies = win.latencies[:e.longWindow]
	}
	win.lastValue = sample.LatencyMs
	win.hasLast = true

	longMean, longStd := meanStd(win.latencies)
	short := win.latencies
	if len(short) > e.shortWindow {
		short = short[len(short)-e.shortWindow:]
	}
	shortMean, shortStd := meanStd(short)

	longStdSafe := longStd
	if longStdSafe < epsilon {
		longStdSafe = epsilon
	}
	shortMeanSafe := shortMean
	if shortMeanSafe < 0 {
		shortMeanSafe = -shortMeanSafe
	}
	if shortMeanSafe < epsilon {
		shortMeanSafe = epsilon
	}

	vec := models.FeatureVector{
		Source:        sample.Source,
		Timestamp:     sample.Timestamp,
		LatencyMs:     sample.LatencyMs,
		ShortMean:     shortMean,
		ShortStd:      shortStd,
		LongMean:      longMean,
		LongStd:       longStd,
		ZScore:        (sample.LatencyMs - longMean) / longStdSafe,
		PctDeviation:  (sample.LatencyMs - shortMean) / shortMeanSafe * 100,
		RateOfChange:  rateOfChange,
		HourOfDay:     float64(sample.Timestamp.Hour()),
		DayOfWeek:     float64(sample.Timestamp.Weekday()),
		LowConfidence: len(win.latencies) < e.shortWindow,
	}

	e.vectors = append(e.vectors, vec)
	if len(e.vectors) > e.maxVectors {
		copy(e.vectors[0:], e.vectors[1:])
		e.vectors = e.vectors[:e.maxVectors]
	}

	return vec
}

// TrainingWindow returns a copy of the buffered trailing vectors across all
// sources. Low-confidence vectors are excluded when excludeLowConfidence is
// set, so cold-start noise does not skew the ensemble.
func (e *Extractor) TrainingWindow(excludeLowConfidence bool) []models.FeatureVector {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.FeatureVector, 0, len(e.vectors))
	for _, v := range e.vectors {
		if excludeLowConfidence && v.LowConfidence {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Sources returns the identifiers of every source seen so far.
func (e *Extractor) Sources() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.sources))
	for name := range e.sources {
		out = append(out, name)
	}
	return out
}

// SampleCount reports how many latency samples are currently buffered for a
// source.
func (e *Extractor) SampleCount(source string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	win, ok := e.sources[source]
	if !ok {
		return 0
	}
	return len(win.latencies)
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	if len(values) < 2 {
		return mean, 0
	}
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
