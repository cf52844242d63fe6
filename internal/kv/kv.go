// Package kv defines the key-value storage boundary used by the usage
// tracker, the session manager and the KV-backed configuration source.
//
// The store offers plain get/put/list. There is no compare-and-swap, so
// callers that read-modify-write a key can lose updates under concurrency.
package kv

import (
	"context"
	"time"
)

// Store is the minimal key-value interface consumed by the core.
type Store interface {
	// Get returns the value for key. found is false when the key is absent
	// or expired.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Put writes value under key. A positive ttl makes the key expire ttl
	// after this write; ttl <= 0 stores it without expiry.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// List returns the live keys that start with prefix, in no set order.
	// The chat path never lists; it backs configuration discovery at startup.
	List(ctx context.Context, prefix string) ([]string, error)
}
