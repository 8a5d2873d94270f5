package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels delivered notifications and completed retrains.
	OutcomeSuccess = "success"
	// OutcomeError labels failed deliveries and retrains.
	OutcomeError = "error"
	// OutcomeDropped labels notifications discarded by a full queue.
	OutcomeDropped = "dropped"
	// OutcomeSkipped labels retrains deferred for lack of samples.
	OutcomeSkipped = "skipped"
)

var (
	samplesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse_sentinel",
			Name:      "samples_ingested_total",
			Help:      "Total measurement samples ingested, partitioned by source.",
		},
		[]string{"source"},
	)

	anomalyEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse_sentinel",
			Name:      "anomaly_events_total",
			Help:      "Total scored events, partitioned by severity tier.",
		},
		[]string{"severity"},
	)

	suppressedEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulse_sentinel",
			Name:      "suppressed_events_total",
			Help:      "Events swallowed by a cooldown window instead of alerting.",
		},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse_sentinel",
			Name:      "notifications_total",
			Help:      "Outbound notifications, partitioned by kind and delivery outcome.",
		},
		[]string{"kind", "outcome"},
	)

	retrainsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse_sentinel",
			Name:      "retrains_total",
			Help:      "Model retrain attempts, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	retrainDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pulse_sentinel",
			Name:      "retrain_seconds",
			Help:      "Model training latency in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	modelTrainedTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pulse_sentinel",
			Name:      "model_trained_timestamp_seconds",
			Help:      "Unix time at which the live model snapshot was trained.",
		},
	)
)

// Register attaches pulse-sentinel collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		samplesIngestedTotal,
		anomalyEventsTotal,
		suppressedEventsTotal,
		notificationsTotal,
		retrainsTotal,
		retrainDurationSeconds,
		modelTrainedTimestamp,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveSample records one ingested measurement.
func ObserveSample(source string) {
	samplesIngestedTotal.WithLabelValues(source).Inc()
}

// ObserveEvent records one scored event by severity tier.
func ObserveEvent(severity string) {
	anomalyEventsTotal.WithLabelValues(severity).Inc()
}

// ObserveSuppressed records an event swallowed by a cooldown window.
func ObserveSuppressed() {
	suppressedEventsTotal.Inc()
}

// ObserveNotification records one outbound notification outcome.
func ObserveNotification(kind, outcome string) {
	notificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveRetrain records one retrain attempt. Duration is only observed for
// completed retrains.
func ObserveRetrain(duration time.Duration, outcome string) {
	retrainsTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSuccess {
		return
	}
	if duration < 0 {
		duration = 0
	}
	retrainDurationSeconds.Observe(duration.Seconds())
}

// SetModelTrainedAt publishes the live snapshot's training time.
func SetModelTrainedAt(t time.Time) {
	modelTrainedTimestamp.Set(float64(t.Unix()))
}
