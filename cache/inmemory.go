package cache

import (
	"context"
	"sync"
	"time"
)

type inMemoryCache[T Cacheable] struct {
	entries map[string]*entry[T]
	mutex   sync.Mutex
	closed  bool
	cfg     config
}

var _ Cache[Cacheable] = (*inMemoryCache[Cacheable])(nil)

// NewInMemory returns a new in-memory Cache implementation. Entries live in a
// map guarded by a single mutex and are lost when the process exits.
func NewInMemory[T Cacheable](opts ...Option) (Cache[T], error) {
	cfg, err := applyOptions("memory", opts)
	if err != nil {
		return nil, err
	}
	return &inMemoryCache[T]{
		entries: make(map[string]*entry[T]),
		cfg:     cfg,
	}, nil
}

// sweepLocked drops expired entries. The caller holds the mutex.
func (c *inMemoryCache[T]) sweepLocked(now time.Time) {
	if !c.cfg.expires() {
		return
	}
	ids := expiredIDs(c.entries, c.cfg.cutoff(now))
	for _, id := range ids {
		delete(c.entries, id)
	}
	if len(ids) > 0 {
		c.cfg.log.Trace("swept %d expired entries", len(ids))
	}
}

func (c *inMemoryCache[T]) Submit(_ context.Context, instance T) error {
	id := instance.ID()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return ErrClosed
	}
	now := c.cfg.clock.Now()
	c.sweepLocked(now)
	if _, exists := c.entries[id]; !exists && c.cfg.limited() && len(c.entries) >= c.cfg.limit {
		if victim, ok := leastRecentlyAccessed(c.entries); ok {
			delete(c.entries, victim)
			c.cfg.log.Debug("evicted %s to make room for %s", victim, id)
		}
	}
	e := &entry[T]{id: id, payload: instance}
	if c.cfg.tracksAccess() {
		e.lastAccess = now
	}
	c.entries[id] = e
	return nil
}

func (c *inMemoryCache[T]) Has(_ context.Context, id string) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	c.sweepLocked(c.cfg.clock.Now())
	_, ok := c.entries[id]
	return ok, nil
}

func (c *inMemoryCache[T]) Get(_ context.Context, id string) (T, bool, error) {
	var zero T
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return zero, false, ErrClosed
	}
	now := c.cfg.clock.Now()
	c.sweepLocked(now)
	e, ok := c.entries[id]
	if !ok {
		return zero, false, nil
	}
	if c.cfg.limited() {
		e.lastAccess = now
	}
	return e.payload, true, nil
}

func (c *inMemoryCache[T]) Remove(_ context.Context, id string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return ErrClosed
	}
	delete(c.entries, id)
	return nil
}

// Enumerate snapshots the ids present after the sweep. Each id is looked up
// again when the iterator reaches it: ids removed or expired in the meantime
// are skipped, replaced ids yield the newer value, and ids added after the
// snapshot are not visited. The lock is not held between elements.
func (c *inMemoryCache[T]) Enumerate(_ context.Context) (Iterator[T], error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	c.sweepLocked(c.cfg.clock.Now())
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return &sliceIterator[T]{keys: ids, fetch: c.fetch}, nil
}

func (c *inMemoryCache[T]) fetch(id string) (T, bool, error) {
	var zero T
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return zero, false, ErrClosed
	}
	e, ok := c.entries[id]
	if !ok {
		return zero, false, nil
	}
	now := c.cfg.clock.Now()
	if c.cfg.expires() && e.expired(c.cfg.cutoff(now)) {
		return zero, false, nil
	}
	if c.cfg.limited() {
		e.lastAccess = now
	}
	return e.payload, true, nil
}

func (c *inMemoryCache[T]) EvictExpiredItems(_ context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.sweepLocked(c.cfg.clock.Now())
	return nil
}

func (c *inMemoryCache[T]) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.closed {
		c.closed = true
		c.entries = nil
	}
	return nil
}
