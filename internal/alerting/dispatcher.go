// Package alerting gates scored anomaly events into operator notifications.
// The dispatcher owns all per-source mutable alert state; the digest reporter
// reads and resets it on its own timer.
package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsestack/pulse-sentinel/internal/metrics"
	"github.com/pulsestack/pulse-sentinel/internal/models"
	"github.com/pulsestack/pulse-sentinel/internal/notify"
	"github.com/pulsestack/pulse-sentinel/internal/store"
	"github.com/pulsestack/pulse-sentinel/internal/utils"
)

// digestWindowCap bounds the latency samples kept per source between digests.
const digestWindowCap = 4096

// Dispatcher decides whether a scored event becomes a notification. Each
// source runs a two-state machine: Quiet (no alert outstanding) and Cooling
// (an alert was sent less than one cooldown ago). The Cooling-to-Quiet
// transition is evaluated lazily on the next event for that source.
type Dispatcher struct {
	logger     *slog.Logger
	sender     notify.Sender
	events     *store.EventStore
	cooldown   time.Duration
	recipients []string

	mu      sync.Mutex
	sources map[string]*sourceState
}

type sourceState struct {
	lastAlertTime time.Time
	suppressed    int

	// digest-window aggregates, reset by SnapshotAndReset
	eventCount   int
	tierCounts   map[models.Severity]int
	pendingModel int
	successCount int
	latencies    *utils.LatencyTracker
	lastSeen     time.Time
}

// NewDispatcher constructs a dispatcher. events may be nil when persistence
// is disabled.
func NewDispatcher(logger *slog.Logger, sender notify.Sender, events *store.EventStore, cooldown time.Duration, recipients []string) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cooldown <= 0 {
		cooldown = 600 * time.Second
	}
	return &Dispatcher{
		logger:     logger,
		sender:     sender,
		events:     events,
		cooldown:   cooldown,
		recipients: recipients,
		sources:    make(map[string]*sourceState),
	}
}

// Handle processes one scored event. It always updates the digest-window
// aggregates; it emits a notification only from Quiet state for tiers High
// and above. Event timestamps drive the state machine so that replayed and
// live streams behave identically.
func (d *Dispatcher) Handle(ctx context.Context, event models.AnomalyEvent, success bool) {
	d.mu.Lock()
	state := d.ensureState(event.Source)

	state.eventCount++
	state.tierCounts[event.Severity]++
	if event.Severity == models.SeverityUnknown {
		state.pendingModel++
	}
	if success {
		state.successCount++
	}
	state.latencies.Observe(event.LatencyMs)
	if event.Timestamp.After(state.lastSeen) {
		state.lastSeen = event.Timestamp
	}

	cooling := !state.lastAlertTime.IsZero() &&
		event.Timestamp.Sub(state.lastAlertTime) < d.cooldown

	if cooling {
		state.suppressed++
		suppressed := state.suppressed
		lastAlert := state.lastAlertTime
		d.mu.Unlock()

		metrics.ObserveSuppressed()
		d.logger.Debug("event suppressed by cooldown",
			slog.String("source", event.Source),
			slog.String("severity", event.Severity.String()),
			slog.Int("suppressed", suppressed))
		d.persistState(ctx, event.Source, lastAlert, suppressed)
		return
	}

	if event.Severity.Rank() < models.SeverityHigh.Rank() {
		d.mu.Unlock()
		return
	}

	// Quiet -> Cooling. Last-alert time only ever moves forward.
	if event.Timestamp.After(state.lastAlertTime) {
		state.lastAlertTime = event.Timestamp
	}
	state.suppressed = 0
	lastAlert := state.lastAlertTime
	d.mu.Unlock()

	notification := d.buildAlert(event)
	if err := d.sender.Send(ctx, notification); err != nil {
		// The async sender never fails the handoff; a synchronous sender
		// might. Either way the cooldown stands so a broken transport cannot
		// cause an alert storm.
		d.logger.Warn("alert handoff failed", slog.String("source", event.Source), slog.Any("error", err))
	}
	d.logger.Info("alert dispatched",
		slog.String("source", event.Source),
		slog.String("severity", event.Severity.String()),
		slog.Float64("score", event.Score))
	d.persistState(ctx, event.Source, lastAlert, 0)
}

// SnapshotAndReset returns the digest rows for every tracked source and
// clears the digest-window aggregates, including suppressed counts. Cooldown
// clocks keep running: lastAlertTime survives the reset.
func (d *Dispatcher) SnapshotAndReset() []models.SourceDigest {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]models.SourceDigest, 0, len(d.sources))
	for source, state := range d.sources {
		tiers := make(map[models.Severity]int, len(state.tierCounts))
		abnormal := 0
		for tier, count := range state.tierCounts {
			tiers[tier] = count
			if tier.Rank() >= models.SeverityMedium.Rank() {
				abnormal += count
			}
		}

		successRate := 0.0
		if state.eventCount > 0 {
			successRate = float64(state.successCount) / float64(state.eventCount) * 100
		}

		out = append(out, models.SourceDigest{
			Source:        source,
			EventCount:    state.eventCount,
			TierCounts:    tiers,
			PendingModel:  state.pendingModel,
			Suppressed:    state.suppressed,
			MeanLatencyMs: state.latencies.Mean(),
			P95LatencyMs:  state.latencies.Percentile(95),
			SuccessRate:   successRate,
			LastSeen:      state.lastSeen,
			Healthy:       state.eventCount == 0 || abnormal == 0,
		})

		state.eventCount = 0
		state.tierCounts = make(map[models.Severity]int)
		state.pendingModel = 0
		state.successCount = 0
		state.suppressed = 0
		state.latencies.Reset()
	}
	return out
}

// AlertState reports a source's current cooldown state for the API surface.
func (d *Dispatcher) AlertState(source string) (lastAlert time.Time, suppressed int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, found := d.sources[source]
	if !found {
		return time.Time{}, 0, false
	}
	return state.lastAlertTime, state.suppressed, true
}

// RestoreAlertState seeds a source's cooldown state from persisted records,
// used at startup for restart continuity. Timestamps never move backward.
func (d *Dispatcher) RestoreAlertState(rec store.AlertStateRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state := d.ensureState(rec.Source)
	if rec.LastAlertTime.After(state.lastAlertTime) {
		state.lastAlertTime = rec.LastAlertTime
		state.suppressed = rec.Suppressed
	}
}

func (d *Dispatcher) ensureState(source string) *sourceState {
	state, ok := d.sources[source]
	if !ok {
		state = &sourceState{
			tierCounts: make(map[models.Severity]int),
			latencies:  utils.NewLatencyTracker(digestWindowCap),
		}
		d.sources[source] = state
	}
	return state
}

func (d *Dispatcher) buildAlert(event models.AnomalyEvent) models.Notification {
	subject := fmt.Sprintf("[%s] %s: latency anomaly detected",
		strings.ToUpper(event.Severity.String()), event.Source)

	var body strings.Builder
	fmt.Fprintf(&body, "Source: %s\n", event.Source)
	fmt.Fprintf(&body, "Time: %s\n", event.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&body, "Severity: %s\n", event.Severity)
	fmt.Fprintf(&body, "Anomaly score: %.4f\n", event.Score)
	if event.Details != "" {
		fmt.Fprintf(&body, "%s\n", event.Details)
	}
	fmt.Fprintf(&body, "\nFurther events for this source are suppressed for %s.\n", d.cooldown)

	return models.Notification{
		ID:         uuid.NewString(),
		Kind:       models.NotificationAlert,
		Recipients: d.recipients,
		Subject:    subject,
		Body:       body.String(),
		Severity:   event.Severity,
		CreatedAt:  time.Now().UTC(),
	}
}

func (d *Dispatcher) persistState(ctx context.Context, source string, lastAlert time.Time, suppressed int) {
	if d.events == nil || !d.events.Enabled() {
		return
	}
	rec := store.AlertStateRecord{Source: source, LastAlertTime: lastAlert, Suppressed: suppressed}
	if err := d.events.SaveAlertState(ctx, rec); err != nil {
		d.logger.Warn("persist alert state failed", slog.String("source", source), slog.Any("error", err))
	}
}
