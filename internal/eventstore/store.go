// Package eventstore persists dispatch and build lifecycle events so the
// admin API can answer "what happened to that push".
package eventstore

import (
	"context"
	"time"
)

// Store defines the interface for persisting and retrieving events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, scopeID, eventType string, payload []byte, metadata map[string]string) error

	// GetByScopeID retrieves all events for a specific dispatch or build.
	GetByScopeID(ctx context.Context, scopeID string) ([]Event, error)

	// GetRecent retrieves the most recent events, newest first.
	GetRecent(ctx context.Context, limit int) ([]Event, error)

	// GetRange retrieves events within a time range.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// Close closes the store and releases resources.
	Close() error
}

// NopStore discards every event; used when the event store is not configured.
type NopStore struct{}

func (NopStore) Append(context.Context, string, string, []byte, map[string]string) error {
	return nil
}
func (NopStore) GetByScopeID(context.Context, string) ([]Event, error) { return nil, nil }
func (NopStore) GetRecent(context.Context, int) ([]Event, error)       { return nil, nil }
func (NopStore) GetRange(context.Context, time.Time, time.Time) ([]Event, error) {
	return nil, nil
}
func (NopStore) Close() error { return nil }
