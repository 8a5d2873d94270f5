package models

import "time"

// MeasurementSample is one probe result for a monitored endpoint. Samples are
// immutable once created: the prober builds them, the feature extractor
// consumes them exactly once.
type MeasurementSample struct {
	Source       string    `json:"source"`
	Timestamp    time.Time `json:"timestamp"`
	LatencyMs    float64   `json:"latency_ms"`
	StatusCode   int       `json:"status_code"`
	Success      bool      `json:"success"`
	ResponseSize int64     `json:"response_size_bytes"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// FeatureVector is the fixed-shape numeric view of one sample plus its
// per-source rolling context. LowConfidence marks vectors computed before the
// short window filled; training may exclude them, scoring never does.
type FeatureVector struct {
	Source    string
	Timestamp time.Time

	LatencyMs    float64
	ShortMean    float64
	ShortStd     float64
	LongMean     float64
	LongStd      float64
	ZScore       float64
	PctDeviation float64
	RateOfChange float64
	HourOfDay    float64
	DayOfWeek    float64

	LowConfidence bool
}

// Dimensions is the length of the slice returned by Values.
const Dimensions = 10

// Values flattens the vector for the outlier ensemble. The order is fixed;
// trees index into it by position.
func (v FeatureVector) Values() []float64 {
	return []float64{
		v.LatencyMs,
		v.ShortMean,
		v.ShortStd,
		v.LongMean,
		v.LongStd,
		v.ZScore,
		v.PctDeviation,
		v.RateOfChange,
		v.HourOfDay,
		v.DayOfWeek,
	}
}
