package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pulsestack/pulse-sentinel/internal/models"
)

const (
	eventLogKey     = "sentinel:events"
	alertStateKey   = "sentinel:alertstate:"
	defaultEventCap = 200
)

// AlertStateRecord is the persisted shape of one source's dispatcher state,
// kept for observability and restart continuity. The core never requires it.
type AlertStateRecord struct {
	Source        string    `json:"source"`
	LastAlertTime time.Time `json:"last_alert_time"`
	Suppressed    int       `json:"suppressed"`
}

// EventStore persists anomaly events and alert state through a Provider.
// Every method is best-effort from the pipeline's point of view: callers log
// failures and move on.
type EventStore struct {
	provider Provider
	maxLen   int
	ttl      time.Duration
}

// NewEventStore wraps a provider. maxLen bounds the shared event log.
func NewEventStore(provider Provider, maxLen int, ttl time.Duration) *EventStore {
	if provider == nil {
		provider = NoopProvider{}
	}
	if maxLen <= 0 {
		maxLen = defaultEventCap
	}
	return &EventStore{provider: provider, maxLen: maxLen, ttl: ttl}
}

// AppendEvent pushes an anomaly event onto the bounded event log.
func (s *EventStore) AppendEvent(ctx context.Context, event models.AnomalyEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.provider.LPush(ctx, eventLogKey, data, s.maxLen)
}

// RecentEvents returns up to limit events, newest first. Entries that fail to
// decode are skipped rather than failing the listing.
func (s *EventStore) RecentEvents(ctx context.Context, limit int) ([]models.AnomalyEvent, error) {
	if limit <= 0 || limit > s.maxLen {
		limit = s.maxLen
	}
	raw, err := s.provider.LRange(ctx, eventLogKey, limit)
	if err != nil {
		return nil, err
	}

	events := make([]models.AnomalyEvent, 0, len(raw))
	for _, item := range raw {
		var event models.AnomalyEvent
		if err := json.Unmarshal(item, &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// SaveAlertState persists one source's dispatcher state.
func (s *EventStore) SaveAlertState(ctx context.Context, rec AlertStateRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode alert state: %w", err)
	}
	return s.provider.Set(ctx, alertStateKey+rec.Source, data, s.ttl)
}

// LoadAlertState fetches one source's persisted dispatcher state. A missing
// key returns ErrNotFound.
func (s *EventStore) LoadAlertState(ctx context.Context, source string) (AlertStateRecord, error) {
	data, err := s.provider.Get(ctx, alertStateKey+source)
	if err != nil {
		return AlertStateRecord{}, err
	}
	var rec AlertStateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return AlertStateRecord{}, fmt.Errorf("decode alert state: %w", err)
	}
	if rec.Source == "" {
		rec.Source = source
	}
	return rec, nil
}

// Enabled reports whether a real provider backs this store.
func (s *EventStore) Enabled() bool {
	_, noop := s.provider.(NoopProvider)
	return !noop
}

// Close releases the underlying provider.
func (s *EventStore) Close() error {
	if s.provider == nil {
		return nil
	}
	return s.provider.Close()
}

// IsNotFound reports whether err is the provider's missing-key error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
