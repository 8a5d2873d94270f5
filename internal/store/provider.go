package store

import (
	"context"
	"errors"
	"time"
)

// Provider defines the minimal key/value and list operations the engine
// needs for optional persistence of anomaly events and alert state.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	// LPush prepends value to the list at key and trims it to maxLen entries.
	LPush(ctx context.Context, key string, value []byte, maxLen int) error
	// LRange returns up to count entries from the head of the list at key.
	LRange(ctx context.Context, key string, count int) ([][]byte, error)
	Close() error
}

// ErrNotFound signals that a key was absent.
var ErrNotFound = errors.New("store: not found")

// NoopProvider implements Provider but never stores data. Used when
// persistence is disabled; the core is correct without it.
type NoopProvider struct{}

// Get always returns ErrNotFound.
func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrNotFound
}

// Set discards the value and returns nil.
func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

// Del is a no-op.
func (NoopProvider) Del(context.Context, string) error { return nil }

// LPush discards the value and returns nil.
func (NoopProvider) LPush(context.Context, string, []byte, int) error { return nil }

// LRange always returns an empty list.
func (NoopProvider) LRange(context.Context, string, int) ([][]byte, error) {
	return nil, nil
}

// Close is a no-op.
func (NoopProvider) Close() error { return nil }
