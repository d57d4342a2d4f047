// Package store defines the storage contract shared by the dispatch engine:
// a value KV for model state, per-session hashes for history events, and a
// per-session pub/sub channel for live fan-out.
package store

import (
	"context"
	"time"
)

// Callback receives a published session event.
type Callback func(eventID string, value []byte)

// Store abstracts the backing storage. Two backends ship with the module:
// mem (in-process) and redis (distributed). Both provide identical
// subscription semantics: within one session, callbacks fire in append
// order; delivery is at-least-once, so consumers deduplicate by event id.
type Store interface {
	// ValueGet reads a plain value; found is false when the key is absent.
	ValueGet(ctx context.Context, key string) (value []byte, found bool, err error)

	// ValueSet writes a plain value.
	ValueSet(ctx context.Context, key string, value []byte) error

	// HashSet appends a field to the session hash and refreshes the whole
	// session's TTL. When publish is set, subscribers of the session are
	// notified with the appended value.
	HashSet(ctx context.Context, session, eventID string, value []byte, ttl time.Duration, publish bool) error

	// HashGet reads a single session hash field.
	HashGet(ctx context.Context, session, eventID string) (value []byte, found bool, err error)

	// HashGetAll returns all fields of the session hash keyed by event id.
	HashGetAll(ctx context.Context, session string) (map[string][]byte, error)

	// Subscribe registers a callback for the session's published events and
	// returns a cancel function. Subscribing implicitly creates the
	// session's subscription channel.
	Subscribe(ctx context.Context, session string, callback Callback) (cancel func(), err error)

	// CreateSubscription ensures the session's channel exists; idempotent.
	CreateSubscription(ctx context.Context, session string) error

	// RemoveSubscription tears the session's channel down; idempotent.
	RemoveSubscription(ctx context.Context, session string) error

	// Close releases backend resources.
	Close() error
}
