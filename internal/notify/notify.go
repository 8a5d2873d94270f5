// Package notify carries alert and digest payloads to operators. Transports
// implement Sender; the pipeline always talks to an Async wrapper so a slow
// transport cannot backpressure scoring.
package notify

import (
	"context"

	"github.com/pulsestack/pulse-sentinel/internal/models"
)

// Sender delivers a notification to its transport. Send must honour the
// context deadline; implementations are expected to be safe for concurrent
// use.
type Sender interface {
	Send(ctx context.Context, n models.Notification) error
	Close() error
}
