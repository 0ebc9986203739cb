package cache

import (
	"iter"

	"github.com/cockroachdb/errors"
)

// Iterator is a single pass, closeable sequence of cached values. Reading an
// element may refresh its recency. Close is idempotent and must be called to
// release backend resources such as database cursors.
type Iterator[T any] interface {
	// HasNext reports whether Next will produce an element or an error.
	HasNext() bool
	// Next returns the next element, or ErrNoMoreItems once drained.
	Next() (T, error)
	// Close releases the iterator.
	Close() error
}

// ToList drains it into a slice and closes it.
func ToList[T any](it Iterator[T]) ([]T, error) {
	var out []T
	err := ForEach(it, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// ForEach calls fn for every remaining element and closes it, even when fn
// or the iterator fails. The first error is returned.
func ForEach[T any](it Iterator[T], fn func(T) error) (err error) {
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for it.HasNext() {
		v, err := it.Next()
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

// All adapts it for range-over-func. The iterator is closed when the loop
// ends or breaks. An error is yielded once and ends the sequence.
func All[T any](it Iterator[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer it.Close()
		for it.HasNext() {
			v, err := it.Next()
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

// sliceIterator yields values from fetch for each key until fetch reports
// the key is gone. Used by backends that snapshot keys up front.
type sliceIterator[T any] struct {
	keys    []string
	pos     int
	fetch   func(key string) (T, bool, error)
	release func() error
	pending *T
	err     error
	closed  bool
}

func (it *sliceIterator[T]) HasNext() bool {
	if it.closed {
		return false
	}
	if it.pending != nil || it.err != nil {
		return true
	}
	for it.pos < len(it.keys) {
		key := it.keys[it.pos]
		it.pos++
		v, ok, err := it.fetch(key)
		if err != nil {
			it.err = err
			return true
		}
		if ok {
			it.pending = &v
			return true
		}
	}
	return false
}

func (it *sliceIterator[T]) Next() (T, error) {
	var zero T
	if it.closed {
		return zero, ErrClosed
	}
	if !it.HasNext() {
		return zero, errors.WithStack(ErrNoMoreItems)
	}
	if it.err != nil {
		err := it.err
		it.err = nil
		return zero, err
	}
	v := *it.pending
	it.pending = nil
	return v, nil
}

func (it *sliceIterator[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.pending = nil
	if it.release != nil {
		return it.release()
	}
	return nil
}
