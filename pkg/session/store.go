package session

import "context"

// Store is a small durable key/value store local to one client.
// Implementations must be thread-safe.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set creates or overwrites the value for key.
	Set(ctx context.Context, key string, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	Close(ctx context.Context) error
}
