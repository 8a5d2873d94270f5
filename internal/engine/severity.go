package engine

import (
	"fmt"

	"github.com/pulsestack/pulse-sentinel/internal/models"
)

// SeverityClassifier maps a rebased anomaly score to a discrete tier. More
// negative scores are more anomalous, so the critical cutoff sits at or below
// the high cutoff and both are negative.
type SeverityClassifier struct {
	critical float64
	high     float64
}

// NewSeverityClassifier validates the threshold ordering and returns a
// classifier. Ordering violations are configuration errors, caught at
// startup.
func NewSeverityClassifier(critical, high float64) (*SeverityClassifier, error) {
	if critical > high {
		return nil, fmt.Errorf("severity thresholds: critical %.4f must not exceed high %.4f", critical, high)
	}
	if high >= 0 {
		return nil, fmt.Errorf("severity thresholds: high %.4f must be negative", high)
	}
	return &SeverityClassifier{critical: critical, high: high}, nil
}

// Classify is a pure function of the score and the two thresholds.
func (c *SeverityClassifier) Classify(score float64) models.Severity {
	switch {
	case score < c.critical:
		return models.SeverityCritical
	case score < c.high:
		return models.SeverityHigh
	case score < 0:
		return models.SeverityMedium
	default:
		return models.SeverityNone
	}
}
