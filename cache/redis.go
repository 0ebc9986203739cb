package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

type redisCache[T Cacheable] struct {
	client    *redis.Client
	codec     Codec[T]
	cfg       config
	writeLock sync.Mutex
	closed    atomic.Bool
}

var _ Cache[Cacheable] = (*redisCache[Cacheable])(nil)

// NewRedis returns a new Cache backed by Redis. Each entry is a hash holding
// the type tag and payload; a sorted set scored by last access time indexes
// the entries for expiry, eviction and enumeration.
// The caller owns the redis.Client lifecycle; Close is a no-op on the client.
func NewRedis[T Cacheable](client *redis.Client, codec Codec[T], opts ...Option) (Cache[T], error) {
	if client == nil {
		return nil, configError("client must not be nil")
	}
	if codec == nil {
		return nil, configError("codec must not be nil")
	}
	cfg, err := applyOptions("redis", opts)
	if err != nil {
		return nil, err
	}
	return &redisCache[T]{
		client: client,
		codec:  codec,
		cfg:    cfg,
	}, nil
}

func (c *redisCache[T]) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.queryTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.cfg.queryTimeout)
}

func (c *redisCache[T]) prefixKey(key string) string {
	if c.cfg.prefix == "" {
		return key
	}
	return c.cfg.prefix + ":" + key
}

func (c *redisCache[T]) entryKey(id string) string {
	return c.prefixKey("entry:" + id)
}

func (c *redisCache[T]) accessKey() string {
	return c.prefixKey("access")
}

// score converts a time to a sorted set score. Microseconds stay exact in a
// float64 for the foreseeable future, nanoseconds do not.
func (c *redisCache[T]) score(t time.Time) float64 {
	if !c.cfg.tracksAccess() {
		return 0
	}
	return float64(t.UnixMicro())
}

func (c *redisCache[T]) sweep(ctx context.Context, now time.Time) error {
	if !c.cfg.expires() {
		return nil
	}
	upper := strconv.FormatInt(c.cfg.cutoff(now).UnixMicro(), 10)
	ids, err := c.client.ZRangeByScore(ctx, c.accessKey(), &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return storageError(err, "sweep %s", c.accessKey())
	}
	if len(ids) == 0 {
		return nil
	}
	if err := c.delete(ctx, ids...); err != nil {
		return err
	}
	c.cfg.log.Trace("swept %d expired entries", len(ids))
	return nil
}

func (c *redisCache[T]) delete(ctx context.Context, ids ...string) error {
	keys := make([]string, len(ids))
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = c.entryKey(id)
		members[i] = id
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, c.accessKey(), members...)
		return nil
	})
	if err != nil {
		return storageError(err, "delete %d entries", len(ids))
	}
	return nil
}

func (c *redisCache[T]) Submit(ctx context.Context, instance T) error {
	if c.closed.Load() {
		return ErrClosed
	}
	id := instance.ID()
	tag, payload, err := c.codec.Serialize(instance)
	if err != nil {
		return errors.Wrapf(err, "serialize %q", id)
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	now := c.cfg.clock.Now()
	if err := c.sweep(qctx, now); err != nil {
		return err
	}
	if c.cfg.limited() {
		if err := c.makeRoom(qctx, id); err != nil {
			return err
		}
	}
	_, err = c.client.TxPipelined(qctx, func(pipe redis.Pipeliner) error {
		pipe.Del(qctx, c.entryKey(id))
		pipe.HSet(qctx, c.entryKey(id), "t", tag, "p", payload)
		pipe.ZAdd(qctx, c.accessKey(), redis.Z{Score: c.score(now), Member: id})
		return nil
	})
	if err != nil {
		return storageError(err, "submit %q", id)
	}
	return nil
}

func (c *redisCache[T]) makeRoom(ctx context.Context, id string) error {
	_, err := c.client.ZScore(ctx, c.accessKey(), id).Result()
	if err == nil {
		return nil
	}
	if !errors.Is(err, redis.Nil) {
		return storageError(err, "check %q", id)
	}
	count, err := c.client.ZCard(ctx, c.accessKey()).Result()
	if err != nil {
		return storageError(err, "count %s", c.accessKey())
	}
	if count < int64(c.cfg.limit) {
		return nil
	}
	oldest, err := c.client.ZRange(ctx, c.accessKey(), 0, 0).Result()
	if err != nil {
		return storageError(err, "select eviction victim")
	}
	if len(oldest) == 0 {
		return nil
	}
	if err := c.delete(ctx, oldest[0]); err != nil {
		return err
	}
	c.cfg.log.Debug("evicted %s to make room for %s", oldest[0], id)
	return nil
}

func (c *redisCache[T]) Has(ctx context.Context, id string) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	if err := c.sweep(qctx, c.cfg.clock.Now()); err != nil {
		return false, err
	}
	n, err := c.client.Exists(qctx, c.entryKey(id)).Result()
	if err != nil {
		return false, storageError(err, "lookup %q", id)
	}
	return n > 0, nil
}

func (c *redisCache[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	if c.closed.Load() {
		return zero, false, ErrClosed
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	now := c.cfg.clock.Now()
	if err := c.sweep(qctx, now); err != nil {
		return zero, false, err
	}
	return c.load(qctx, id, now)
}

// load reads and decodes one entry, refreshing its recency when limited.
// Entries whose score is already past the cutoff are treated as missing.
func (c *redisCache[T]) load(ctx context.Context, id string, now time.Time) (T, bool, error) {
	var zero T
	var fields *redis.MapStringStringCmd
	var score *redis.FloatCmd
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, c.entryKey(id))
		score = pipe.ZScore(ctx, c.accessKey(), id)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return zero, false, storageError(err, "get %q", id)
	}
	data := fields.Val()
	if len(data) == 0 || score.Err() != nil {
		return zero, false, nil
	}
	if c.cfg.expires() && score.Val() <= float64(c.cfg.cutoff(now).UnixMicro()) {
		return zero, false, nil
	}
	val, err := c.codec.Deserialize(data["t"], data["p"])
	if err != nil {
		c.cfg.log.Warn("entry %s with type %s could not be decoded: %s", id, data["t"], err)
		return zero, false, deserializeError(err, id)
	}
	if c.cfg.limited() {
		if err := c.client.ZAddXX(ctx, c.accessKey(), redis.Z{Score: c.score(now), Member: id}).Err(); err != nil {
			return zero, false, storageError(err, "touch %q", id)
		}
	}
	return val, true, nil
}

func (c *redisCache[T]) Remove(ctx context.Context, id string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	return c.delete(qctx, id)
}

// Enumerate snapshots the indexed ids and loads each entry when the iterator
// reaches it. Entries removed or expired in the meantime are skipped.
func (c *redisCache[T]) Enumerate(ctx context.Context) (Iterator[T], error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	if err := c.sweep(qctx, c.cfg.clock.Now()); err != nil {
		return nil, err
	}
	ids, err := c.client.ZRange(qctx, c.accessKey(), 0, -1).Result()
	if err != nil {
		return nil, storageError(err, "enumerate %s", c.accessKey())
	}
	fetch := func(id string) (T, bool, error) {
		if c.closed.Load() {
			var zero T
			return zero, false, ErrClosed
		}
		fctx, cancel := c.queryCtx(ctx)
		defer cancel()
		return c.load(fctx, id, c.cfg.clock.Now())
	}
	return &sliceIterator[T]{keys: ids, fetch: fetch}, nil
}

func (c *redisCache[T]) EvictExpiredItems(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	return c.sweep(qctx, c.cfg.clock.Now())
}

// Close marks the cache closed and leaves the client open.
func (c *redisCache[T]) Close() error {
	c.closed.Store(true)
	return nil
}
