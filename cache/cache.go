package cache

import (
	"context"
)

// Cacheable is anything that can be stored in a Cache. The id must stay the
// same for as long as the value is cached.
type Cacheable interface {
	ID() string
}

// Cache is the contract shared by every backend.
type Cache[T Cacheable] interface {
	// Submit stores instance under instance.ID(), replacing any existing entry.
	// When a limit is configured and the id is new, the least recently
	// accessed entry is evicted first.
	Submit(ctx context.Context, instance T) error

	// Has reports whether a live entry exists for id.
	Has(ctx context.Context, id string) (bool, error)

	// Get returns the live entry for id. The bool is false on a miss.
	Get(ctx context.Context, id string) (T, bool, error)

	// Remove deletes the entry for id. Removing a missing id is not an error.
	Remove(ctx context.Context, id string) error

	// Enumerate returns an iterator over every live entry. The iterator must
	// be closed.
	Enumerate(ctx context.Context) (Iterator[T], error)

	// EvictExpiredItems removes every expired entry now. It is a no-op when
	// expiry is disabled.
	EvictExpiredItems(ctx context.Context) error

	// Close releases resources owned by the cache. Connections or clients
	// supplied by the caller are left open.
	Close() error
}

// Provider produces the value for id on a cache miss. Returning false means
// there is nothing to cache and is not an error.
type Provider[T Cacheable] func(ctx context.Context, id string) (T, bool, error)

// GetOrProvide returns the cached value for id. On a miss provider is called
// once; a value it yields is submitted to c and returned. Provider and Submit
// errors are returned to the caller.
func GetOrProvide[T Cacheable](ctx context.Context, c Cache[T], id string, provider Provider[T]) (T, bool, error) {
	val, found, err := c.Get(ctx, id)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if found {
		return val, true, nil
	}

	result, ok, err := provider(ctx, id)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if !ok {
		var zero T
		return zero, false, nil
	}

	if err := c.Submit(ctx, result); err != nil {
		var zero T
		return zero, false, err
	}
	return result, true, nil
}
