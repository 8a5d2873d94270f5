package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pulsestack/pulse-sentinel/internal/models"
)

// flakySender fails the first failures attempts, then succeeds.
type flakySender struct {
	mu       sync.Mutex
	failures int
	attempts int
	sent     []models.Notification
}

func (s *flakySender) Send(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failures {
		return errors.New("transport down")
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *flakySender) Close() error { return nil }

func (s *flakySender) stats() (attempts, delivered int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts, len(s.sent)
}

func TestAsyncDelivers(t *testing.T) {
	inner := &flakySender{}
	async := NewAsync(inner, nil, 8, time.Second, time.Millisecond)

	if err := async.Send(context.Background(), testNotification()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := async.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	attempts, delivered := inner.stats()
	if attempts != 1 || delivered != 1 {
		t.Fatalf("expected one successful attempt, got attempts=%d delivered=%d", attempts, delivered)
	}
}

func TestAsyncRetriesOnce(t *testing.T) {
	inner := &flakySender{failures: 1}
	async := NewAsync(inner, nil, 8, time.Second, time.Millisecond)

	if err := async.Send(context.Background(), testNotification()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := async.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	attempts, delivered := inner.stats()
	if attempts != 2 {
		t.Fatalf("expected exactly one retry, got %d attempts", attempts)
	}
	if delivered != 1 {
		t.Fatalf("retry should have delivered, got %d", delivered)
	}
}

func TestAsyncDropsAfterRetry(t *testing.T) {
	inner := &flakySender{failures: 10}
	async := NewAsync(inner, nil, 8, time.Second, time.Millisecond)

	if err := async.Send(context.Background(), testNotification()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := async.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	attempts, delivered := inner.stats()
	if attempts != 2 {
		t.Fatalf("a failing notification gets exactly two attempts, got %d", attempts)
	}
	if delivered != 0 {
		t.Fatalf("expected drop after retry, got %d delivered", delivered)
	}
}

// blockingSender holds every delivery until released.
type blockingSender struct {
	release chan struct{}
	mu      sync.Mutex
	sent    int
}

func (s *blockingSender) Send(_ context.Context, _ models.Notification) error {
	<-s.release
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return nil
}

func (s *blockingSender) Close() error { return nil }

func TestAsyncFullQueueDoesNotBlock(t *testing.T) {
	inner := &blockingSender{release: make(chan struct{})}
	async := NewAsync(inner, nil, 2, time.Second, time.Millisecond)

	// One in flight, two queued, the rest dropped. Send must return
	// immediately either way.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_ = async.Send(context.Background(), testNotification())
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Send blocked on a full queue")
	}

	close(inner.release)
	if err := async.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	inner.mu.Lock()
	defer inner.mu.Unlock()
	if inner.sent == 0 || inner.sent > 3 {
		t.Fatalf("expected 1-3 deliveries after drops, got %d", inner.sent)
	}
}

func TestAsyncCloseIdempotent(t *testing.T) {
	async := NewAsync(&flakySender{}, nil, 8, time.Second, time.Millisecond)
	if err := async.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := async.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
