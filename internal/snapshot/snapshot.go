// Package snapshot stores fetched table snapshots keyed by source identifier.
// A store never refetches on its own: callers read an Entry, check IsStale and decide.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no snapshot exists for a key.
var ErrNotFound = errors.New("snapshot: key not found")

// Entry is a serialized snapshot and the time it was fetched.
type Entry struct {
	FetchedAt time.Time `json:"fetched_at"`
	Payload   []byte    `json:"payload"`
}

// IsStale reports whether the entry is at least ttl old at now.
// A non-positive ttl makes every entry stale.
func (e Entry) IsStale(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	return now.Sub(e.FetchedAt) >= ttl
}

// Age returns how long ago the entry was fetched.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// Store is a keyed snapshot store.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Put(ctx context.Context, key string, entry Entry) error
	// Clear removes every snapshot held by the store.
	Clear(ctx context.Context) error
}

// GetJSON reads the entry for key and decodes its payload into dest.
func GetJSON(ctx context.Context, store Store, key string, dest interface{}) (Entry, error) {
	entry, err := store.Get(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal(entry.Payload, dest); err != nil {
		return Entry{}, fmt.Errorf("snapshot: decode %q: %w", key, err)
	}
	return entry, nil
}

// PutJSON encodes value and stores it under key with the given fetch time.
func PutJSON(ctx context.Context, store Store, key string, value interface{}, fetchedAt time.Time) (Entry, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return Entry{}, fmt.Errorf("snapshot: encode %q: %w", key, err)
	}
	entry := Entry{FetchedAt: fetchedAt, Payload: data}
	if err := store.Put(ctx, key, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}
