package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pulsestack/pulse-sentinel/internal/models"
	"github.com/pulsestack/pulse-sentinel/internal/notify"
)

// Reporter emits one periodic status digest covering every tracked source,
// independent of any cooldown state. Each tick also resets the dispatcher's
// suppressed-event counters.
type Reporter struct {
	logger     *slog.Logger
	dispatcher *Dispatcher
	sender     notify.Sender
	interval   time.Duration
	recipients []string
}

// NewReporter constructs a digest reporter.
func NewReporter(logger *slog.Logger, dispatcher *Dispatcher, sender notify.Sender, interval time.Duration, recipients []string) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 300 * time.Second
	}
	return &Reporter{
		logger:     logger,
		dispatcher: dispatcher,
		sender:     sender,
		interval:   interval,
		recipients: recipients,
	}
}

// Run ticks until the context is cancelled. Each tick emits exactly one
// digest notification.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("digest reporter stopped")
			return
		case <-ticker.C:
			r.Emit(ctx)
		}
	}
}

// Emit snapshots the digest window and hands one notification to the sender.
// Exposed for tests and for a final flush during shutdown.
func (r *Reporter) Emit(ctx context.Context) {
	digests := r.dispatcher.SnapshotAndReset()
	if len(digests) == 0 {
		r.logger.Debug("digest tick with no tracked sources")
		return
	}

	sort.Slice(digests, func(i, j int) bool { return digests[i].Source < digests[j].Source })

	notification := r.build(digests)
	if err := r.sender.Send(ctx, notification); err != nil {
		r.logger.Warn("digest handoff failed", slog.Any("error", err))
		return
	}
	r.logger.Info("digest emitted", slog.Int("sources", len(digests)))
}

func (r *Reporter) build(digests []models.SourceDigest) models.Notification {
	totalEvents := 0
	abnormal := 0
	highest := models.SeverityNone
	for _, d := range digests {
		totalEvents += d.EventCount
		for tier, count := range d.TierCounts {
			if count == 0 {
				continue
			}
			if tier.Rank() >= models.SeverityMedium.Rank() {
				abnormal += count
			}
			if tier.Rank() > highest.Rank() {
				highest = tier
			}
		}
	}

	subject := fmt.Sprintf("pulse-sentinel digest: %d sources, %d anomalies", len(digests), abnormal)

	var body strings.Builder
	fmt.Fprintf(&body, "Window summary: %d events across %d sources\n\n", totalEvents, len(digests))
	for _, d := range digests {
		if d.EventCount == 0 {
			fmt.Fprintf(&body, "%s: healthy (no events this window)\n", d.Source)
			continue
		}
		fmt.Fprintf(&body, "%s: %d events, medium=%d high=%d critical=%d",
			d.Source,
			d.EventCount,
			d.TierCounts[models.SeverityMedium],
			d.TierCounts[models.SeverityHigh],
			d.TierCounts[models.SeverityCritical])
		if d.PendingModel > 0 {
			fmt.Fprintf(&body, " pending-model=%d", d.PendingModel)
		}
		if d.Suppressed > 0 {
			fmt.Fprintf(&body, " suppressed=%d", d.Suppressed)
		}
		fmt.Fprintf(&body, "\n  latency mean=%.0fms p95=%.0fms success=%.1f%% last-seen=%s\n",
			d.MeanLatencyMs, d.P95LatencyMs, d.SuccessRate, d.LastSeen.UTC().Format(time.RFC3339))
	}

	return models.Notification{
		ID:         uuid.NewString(),
		Kind:       models.NotificationDigest,
		Recipients: r.recipients,
		Subject:    subject,
		Body:       body.String(),
		Severity:   highest,
		CreatedAt:  time.Now().UTC(),
	}
}
