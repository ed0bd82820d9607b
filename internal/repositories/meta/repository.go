// Package meta declares a small key/value store for values that must live
// alongside the data they protect, such as the password-seal salt.
package meta

import "context"

// Repository is a plain key/value store.
type Repository interface {
	// Get returns the value for key, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set inserts or replaces the value for key.
	Set(ctx context.Context, key string, value []byte) error
}
