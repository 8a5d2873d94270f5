package models

import "time"

// Severity captures anomaly impact tiers. Ordering matters: Rank is used by
// the dispatcher to compare tiers.
type Severity string

const (
	// SeverityUnknown marks events scored before any model was trained.
	SeverityUnknown  Severity = "unknown"
	SeverityNone     Severity = "none"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns a comparable ordering for severities. Unknown ranks below
// None so it never trips the alert gate.
func (s Severity) Rank() int {
	switch s {
	case SeverityNone:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// AnomalyEvent is the terminal record produced once per scored sample.
type AnomalyEvent struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	LatencyMs float64   `json:"latency_ms"`
	Score     float64   `json:"score"`
	Severity  Severity  `json:"severity"`
	Details   string    `json:"details,omitempty"`
}

// Notification is the outbound payload handed to a notify.Sender.
type Notification struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Recipients []string  `json:"recipients,omitempty"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Severity   Severity  `json:"severity"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notification kinds.
const (
	NotificationAlert  = "alert"
	NotificationDigest = "digest"
)

// SourceDigest is one per-source row of a periodic digest.
type SourceDigest struct {
	Source        string           `json:"source"`
	EventCount    int              `json:"event_count"`
	TierCounts    map[Severity]int `json:"tier_counts"`
	PendingModel  int              `json:"pending_model"`
	Suppressed    int              `json:"suppressed"`
	MeanLatencyMs float64          `json:"mean_latency_ms"`
	P95LatencyMs  float64          `json:"p95_latency_ms"`
	SuccessRate   float64          `json:"success_rate"`
	LastSeen      time.Time        `json:"last_seen"`
	Healthy       bool             `json:"healthy"`
}
