// Package store is durable client-side key/value storage shared between
// visium processes, with change notifications delivered to the other
// instances that share the same medium.
package store

import "context"

// Event describes a change made through another Store instance.
type Event struct {
	Key      string
	NewValue string
	Removed  bool
}

// Store defines the client state storage.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key. Writing an unchanged value is a no-op.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is a no-op.
	Remove(ctx context.Context, key string) error
	// Watch streams changes made by other instances until ctx is done.
	Watch(ctx context.Context) (<-chan Event, error)

	Close() error
}
