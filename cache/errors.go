package cache

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidConfig is returned by constructors given unusable options.
	ErrInvalidConfig = errors.New("cache: invalid configuration")

	// ErrStorage marks failures of the underlying store. The driver error is
	// kept in the chain.
	ErrStorage = errors.New("cache: storage error")

	// ErrDeserialize marks stored entries that could not be turned back into
	// a value. The entry is left in place.
	ErrDeserialize = errors.New("cache: deserialization error")

	// ErrUnknownType is returned by a Registry for unregistered tags or types.
	ErrUnknownType = errors.New("cache: unknown type")

	// ErrNoMoreItems is returned by Iterator.Next once the iterator is drained.
	ErrNoMoreItems = errors.New("cache: no more items")

	// ErrClosed is returned by operations on a closed cache or iterator.
	ErrClosed = errors.New("cache: closed")
)

func configError(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidConfig)
}

// storageError wraps a backend failure so that errors.Is matches both
// ErrStorage and the original cause.
func storageError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrStorage)
}

func deserializeError(err error, id string) error {
	return errors.Mark(errors.Wrapf(err, "decode entry %q", id), ErrDeserialize)
}
