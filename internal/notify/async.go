package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsestack/pulse-sentinel/internal/metrics"
	"github.com/pulsestack/pulse-sentinel/internal/models"
)

const defaultDrainTimeout = 5 * time.Second

// Async decouples notification production from delivery via a bounded
// channel. The dispatcher enqueues; a background goroutine drains to the
// wrapped transport. A full queue drops the notification with a warning
// rather than blocking the scoring path. Delivery failures are retried once
// after a backoff, then logged and dropped; the dispatcher's cooldown state
// is never rolled back.
type Async struct {
	inner       Sender
	logger      *slog.Logger
	queue       chan models.Notification
	done        chan struct{}
	sendTimeout time.Duration
	backoff     time.Duration
	closeOnce   sync.Once
}

// NewAsync wraps a transport in a non-blocking queue. The drain goroutine
// starts immediately.
func NewAsync(inner Sender, logger *slog.Logger, queueSize int, sendTimeout, backoff time.Duration) *Async {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	a := &Async{
		inner:       inner,
		logger:      logger,
		queue:       make(chan models.Notification, queueSize),
		done:        make(chan struct{}),
		sendTimeout: sendTimeout,
		backoff:     backoff,
	}
	go a.drain()
	return a
}

// Send enqueues the notification and returns immediately. A full queue drops
// the notification.
func (a *Async) Send(_ context.Context, n models.Notification) error {
	select {
	case a.queue <- n:
	default:
		a.logger.Warn("notification queue full, dropping",
			slog.String("kind", n.Kind), slog.String("subject", n.Subject))
		metrics.ObserveNotification(n.Kind, metrics.OutcomeDropped)
	}
	return nil
}

// Close stops accepting notifications, waits for the queue to drain (with a
// timeout), then closes the wrapped transport.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.queue)
		select {
		case <-a.done:
		case <-time.After(defaultDrainTimeout):
			a.logger.Warn("notification queue drain timed out")
		}
		err = a.inner.Close()
	})
	return err
}

func (a *Async) drain() {
	defer close(a.done)
	for n := range a.queue {
		a.deliver(n)
	}
}

func (a *Async) deliver(n models.Notification) {
	err := a.attempt(n)
	if err == nil {
		metrics.ObserveNotification(n.Kind, metrics.OutcomeSuccess)
		return
	}
	a.logger.Warn("notification delivery failed, retrying",
		slog.String("kind", n.Kind), slog.Any("error", err))

	time.Sleep(a.backoff)
	if err := a.attempt(n); err != nil {
		a.logger.Error("notification dropped after retry",
			slog.String("kind", n.Kind), slog.String("subject", n.Subject), slog.Any("error", err))
		metrics.ObserveNotification(n.Kind, metrics.OutcomeError)
		return
	}
	metrics.ObserveNotification(n.Kind, metrics.OutcomeSuccess)
}

func (a *Async) attempt(n models.Notification) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.sendTimeout)
	defer cancel()
	return a.inner.Send(ctx, n)
}
