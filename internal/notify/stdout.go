package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pulsestack/pulse-sentinel/internal/models"
)

// StdoutSender writes notifications as JSON lines, one per notification.
// Useful for local development and as the default transport.
type StdoutSender struct {
	mu  sync.Mutex
	out io.Writer
}

// NewStdoutSender creates a sender writing to os.Stdout. A different writer
// may be supplied for tests.
func NewStdoutSender(out io.Writer) *StdoutSender {
	if out == nil {
		out = os.Stdout
	}
	return &StdoutSender{out: out}
}

// Send writes the notification as one JSON line.
func (s *StdoutSender) Send(_ context.Context, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *StdoutSender) Close() error { return nil }
