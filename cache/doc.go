// Package cache provides a unified caching interface for identifiable values
// with interchangeable storage backends, optional idle expiry and optional
// size bound eviction.
//
// # Cache Interface
//
// Values implement [Cacheable] by exposing a stable id. The [Cache] interface
// defines [Cache.Submit], [Cache.Has], [Cache.Get], [Cache.Remove],
// [Cache.Enumerate], [Cache.EvictExpiredItems] and [Cache.Close]. Every
// backend honours the same rules:
//
//   - At most one entry exists per id. Submitting an existing id replaces the
//     entry and refreshes its recency.
//   - With [WithLimit], Submit of a new id into a full cache evicts exactly one
//     entry: the one accessed least recently.
//   - With [WithExpireAfter], an entry not accessed for the configured duration
//     is never returned. Removal is lazy: every Submit, Has, Get and Enumerate
//     sweeps expired entries first. There is no background goroutine;
//     [Cache.EvictExpiredItems] forces a sweep.
//   - Reads refresh recency only when a limit is configured. Without one the
//     expiry clock starts at submission.
//
// # Implementations
//
//   - [NewInMemory]: in-process map guarded by a mutex. Values are stored
//     as-is (no copying), so mutations to stored pointers are visible through
//     the cache. Lost on process restart.
//
//   - [NewSQL], [OpenSQL] and [OpenSQLite]: a single table in a relational
//     database accessed through database/sql. [OpenSQLite] uses
//     [modernc.org/sqlite] (pure Go, no CGO). [NewSQL] borrows a caller-owned
//     *sql.DB which Close leaves open; the Open variants own theirs.
//     Submit runs its sweep, eviction, delete and insert in one transaction.
//
//   - [NewRedis]: backed by Redis using [github.com/redis/go-redis/v9]. The
//     caller owns the [redis.Client] lifecycle; [Cache.Close] is a no-op on it.
//
// The durable backends need a [Codec] to store values. [Registry] is a Codec
// built from an explicit tag to type mapping, encoding payloads with
// [github.com/vmihailenco/msgpack/v5]:
//
//	reg := cache.NewRegistry[*User]()
//	cache.MustRegister[*User, *User](reg, "user")
//	c, err := cache.OpenSQLite(ctx, "cache.db", reg, cache.WithExpireAfter(time.Hour))
//
// # Read-through
//
// [GetOrProvide] combines lookup and population. The [Provider] returns
// (value, found, error); found=false means there is nothing to cache and is
// not an error. [Loader] adds coalescing of concurrent misses.
//
// # Iteration
//
// [Cache.Enumerate] returns an [Iterator] which must be closed. [ToList],
// [ForEach] and [All] drain and close it. The in-memory and Redis backends
// snapshot ids when the iterator is created and load each entry as it is
// reached. The SQL backend streams a cursor; when a limit is configured the
// recency of the rows it yielded is written when the iterator is closed.
//
// # Error Handling
//
// Errors are classified with sentinels that work with errors.Is:
// [ErrInvalidConfig] from constructors, [ErrStorage] for backend failures
// (the driver error stays in the chain), and [ErrDeserialize] when a stored
// entry cannot be decoded. Undecodable entries are left in storage. Nothing is
// retried and nothing is swallowed, including errors from Submit inside
// [GetOrProvide].
package cache
