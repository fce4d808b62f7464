// Package provider defines the storage abstraction used by blockcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// Important: the keyspaces "blk:<ns>:", "rgn:<ns>:" and "pre:<ns>:" are owned by
// blockcache. Foreign writes under these prefixes fail frame validation and are
// deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs and prefix deletion.
// Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. May ignore cost if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// DelPrefix removes every key starting with prefix and reports how many
	// were removed. prefix is a literal, not a glob.
	DelPrefix(ctx context.Context, prefix string) (int, error)

	// Close releases resources.
	Close(ctx context.Context) error
}

// Item is one write of a batch.
type Item struct {
	Key   string
	Value []byte
	Cost  int64
	TTL   time.Duration
}

// BatchSetter is implemented by providers that can store several items in a
// single round-trip. The batch is not transactional.
type BatchSetter interface {
	SetMany(ctx context.Context, items []Item) error
}

// SetMany writes items through p's BatchSetter when available, otherwise one
// Set per item. The first error is returned after attempting every item.
func SetMany(ctx context.Context, p Provider, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	if bs, ok := p.(BatchSetter); ok {
		return bs.SetMany(ctx, items)
	}
	var first error
	for _, it := range items {
		if _, err := p.Set(ctx, it.Key, it.Value, it.Cost, it.TTL); err != nil && first == nil {
			first = err
		}
	}
	return first
}
