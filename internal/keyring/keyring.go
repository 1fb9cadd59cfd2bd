// Package keyring rotates API credentials across requests so quota usage
// spreads over every configured key.
package keyring

import (
	"errors"
	"sync"
)

// ErrEmpty is returned when a Ring is created without any keys.
var ErrEmpty = errors.New("keyring: no keys configured")

// Ring is a mutex-guarded round-robin over a fixed set of equivalent
// credentials. It is owned by the caller and passed to workers by reference;
// there is no package-level instance.
type Ring struct {
	mu   sync.Mutex
	keys []string
	next int
}

// New creates a Ring over the given keys. Empty strings are dropped.
func New(keys []string) (*Ring, error) {
	var clean []string
	for _, k := range keys {
		if k != "" {
			clean = append(clean, k)
		}
	}
	if len(clean) == 0 {
		return nil, ErrEmpty
	}
	return &Ring{keys: clean}, nil
}

// Next returns the next key in rotation. Safe for concurrent use.
func (r *Ring) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.keys[r.next]
	r.next = (r.next + 1) % len(r.keys)
	return key
}

// Len returns the number of keys in the ring.
func (r *Ring) Len() int {
	return len(r.keys)
}
