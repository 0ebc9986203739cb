package cache

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Loader pairs a Cache with a Provider and coalesces concurrent misses for
// the same id, so the provider runs once while the other callers wait for
// its result.
type Loader[T Cacheable] struct {
	cache    Cache[T]
	provider Provider[T]
	group    singleflight.Group
}

type loaded[T Cacheable] struct {
	val   T
	found bool
}

// NewLoader returns a Loader reading through c.
func NewLoader[T Cacheable](c Cache[T], provider Provider[T]) *Loader[T] {
	return &Loader[T]{cache: c, provider: provider}
}

// Load behaves like GetOrProvide. Callers that arrive while a load for the
// same id is in flight share its result, including errors.
func (l *Loader[T]) Load(ctx context.Context, id string) (T, bool, error) {
	v, err, _ := l.group.Do(id, func() (interface{}, error) {
		val, found, err := GetOrProvide(ctx, l.cache, id, l.provider)
		return loaded[T]{val, found}, err
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	res := v.(loaded[T])
	return res.val, res.found, nil
}

// Forget drops any in-flight load for id so the next Load starts a new one.
func (l *Loader[T]) Forget(id string) {
	l.group.Forget(id)
}
