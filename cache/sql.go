package cache

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

type sqlStatements struct {
	create      string
	createIndex string
	probe       string
	addColumn   string
	sweep       string
	count       string
	exists      string
	oldest      string
	remove      string
	insert      string
	selectOne   string
	selectAll   string
	touch       string
	touchNewer  string
}

func buildStatements(cfg config) sqlStatements {
	t := cfg.table
	s := sqlStatements{
		sweep:      `DELETE FROM ` + t + ` WHERE last_access <= ?`,
		count:      `SELECT COUNT(*) FROM ` + t,
		exists:     `SELECT 1 FROM ` + t + ` WHERE id = ?`,
		oldest:     `SELECT id FROM ` + t + ` ORDER BY last_access ASC LIMIT 1`,
		remove:     `DELETE FROM ` + t + ` WHERE id = ?`,
		selectOne:  `SELECT type_tag, payload FROM ` + t + ` WHERE id = ?`,
		selectAll:  `SELECT id, type_tag, payload FROM ` + t,
		touch:      `UPDATE ` + t + ` SET last_access = ? WHERE id = ?`,
		touchNewer: `UPDATE ` + t + ` SET last_access = ? WHERE id = ? AND last_access < ?`,
	}
	if cfg.tracksAccess() {
		s.create = `CREATE TABLE IF NOT EXISTS ` + t + ` (
		id TEXT PRIMARY KEY,
		type_tag TEXT NOT NULL,
		payload TEXT NOT NULL,
		last_access BIGINT NOT NULL DEFAULT 0
	)`
		s.probe = `SELECT last_access FROM ` + t + ` WHERE 1 = 0`
		s.addColumn = `ALTER TABLE ` + t + ` ADD COLUMN last_access BIGINT NOT NULL DEFAULT 0`
		s.createIndex = `CREATE INDEX IF NOT EXISTS idx_` + t + `_last_access ON ` + t + `(last_access)`
		s.insert = `INSERT INTO ` + t + ` (id, type_tag, payload, last_access) VALUES (?, ?, ?, ?)`
	} else {
		s.create = `CREATE TABLE IF NOT EXISTS ` + t + ` (
		id TEXT PRIMARY KEY,
		type_tag TEXT NOT NULL,
		payload TEXT NOT NULL
	)`
		s.insert = `INSERT INTO ` + t + ` (id, type_tag, payload) VALUES (?, ?, ?)`
	}
	if cfg.bindVar == BindDollar {
		for _, q := range []*string{&s.sweep, &s.exists, &s.remove, &s.insert, &s.selectOne, &s.touch, &s.touchNewer} {
			*q = rebind(*q)
		}
	}
	return s
}

// rebind rewrites ? placeholders as $1, $2, ...
func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type sqlCache[T Cacheable] struct {
	db        *sql.DB
	owned     bool
	codec     Codec[T]
	cfg       config
	stmts     sqlStatements
	writeLock sync.Mutex
	closed    atomic.Bool
	once      sync.Once
}

var _ Cache[Cacheable] = (*sqlCache[Cacheable])(nil)

// NewSQL returns a Cache stored in a table of db. The caller owns db; Close
// leaves it open. The table is created if it does not exist. It has a
// last_access column only when expiry or a limit is configured. Opening a
// table created without one with expiry or a limit adds the column, and its
// existing rows count as accessed at the Unix epoch.
func NewSQL[T Cacheable](ctx context.Context, db *sql.DB, codec Codec[T], opts ...Option) (Cache[T], error) {
	return newSQL(ctx, db, false, codec, opts)
}

// OpenSQL opens a connection with the given database/sql driver and returns a
// Cache that owns it. The driver must already be registered.
func OpenSQL[T Cacheable](ctx context.Context, driverName, dsn string, codec Codec[T], opts ...Option) (Cache[T], error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, storageError(err, "open %s", driverName)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storageError(err, "connect %s", driverName)
	}
	return newSQL(ctx, db, true, codec, opts)
}

func newSQL[T Cacheable](ctx context.Context, db *sql.DB, owned bool, codec Codec[T], opts []Option) (Cache[T], error) {
	fail := func(err error) (Cache[T], error) {
		if owned {
			db.Close()
		}
		return nil, err
	}
	if db == nil {
		return fail(configError("db must not be nil"))
	}
	if codec == nil {
		return fail(configError("codec must not be nil"))
	}
	cfg, err := applyOptions("sql", opts)
	if err != nil {
		return fail(err)
	}
	c := &sqlCache[T]{
		db:    db,
		owned: owned,
		codec: codec,
		cfg:   cfg,
		stmts: buildStatements(cfg),
	}
	if err := c.migrate(ctx); err != nil {
		return fail(err)
	}
	return c, nil
}

func (c *sqlCache[T]) migrate(ctx context.Context) error {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	if _, err := c.db.ExecContext(qctx, c.stmts.create); err != nil {
		return storageError(err, "create table %s", c.cfg.table)
	}
	if c.stmts.probe != "" {
		rows, err := c.db.QueryContext(qctx, c.stmts.probe)
		if err == nil {
			err = rows.Close()
		}
		if err != nil {
			if _, err := c.db.ExecContext(qctx, c.stmts.addColumn); err != nil {
				return storageError(err, "add last_access to %s", c.cfg.table)
			}
			c.cfg.log.Info("added last_access column to %s", c.cfg.table)
		}
	}
	if c.stmts.createIndex != "" {
		if _, err := c.db.ExecContext(qctx, c.stmts.createIndex); err != nil {
			return storageError(err, "create index on %s", c.cfg.table)
		}
	}
	c.cfg.log.Debug("using table %s (expire after %s, limit %d)", c.cfg.table, c.cfg.expireAfter, c.cfg.limit)
	return nil
}

func (c *sqlCache[T]) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.queryTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.cfg.queryTimeout)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// sweep deletes expired rows through ex, which is the pool or a transaction.
func (c *sqlCache[T]) sweep(ctx context.Context, ex execer, now time.Time) error {
	if !c.cfg.expires() {
		return nil
	}
	res, err := ex.ExecContext(ctx, c.stmts.sweep, c.cfg.cutoff(now).UnixNano())
	if err != nil {
		return storageError(err, "sweep %s", c.cfg.table)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		c.cfg.log.Trace("swept %d expired entries", n)
	}
	return nil
}

func (c *sqlCache[T]) Submit(ctx context.Context, instance T) error {
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
	tx, err := c.db.BeginTx(qctx, nil)
	if err != nil {
		return storageError(err, "begin submit %q", id)
	}
	defer tx.Rollback()

	now := c.cfg.clock.Now()
	if err := c.sweep(qctx, tx, now); err != nil {
		return err
	}
	if c.cfg.limited() {
		if err := c.makeRoom(qctx, tx, id); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(qctx, c.stmts.remove, id); err != nil {
		return storageError(err, "replace %q", id)
	}
	args := []any{id, tag, payload}
	if c.cfg.tracksAccess() {
		args = append(args, now.UnixNano())
	}
	if _, err := tx.ExecContext(qctx, c.stmts.insert, args...); err != nil {
		return storageError(err, "insert %q", id)
	}
	if err := tx.Commit(); err != nil {
		return storageError(err, "commit submit %q", id)
	}
	return nil
}

// makeRoom evicts the least recently accessed row when id is new and the
// table is full.
func (c *sqlCache[T]) makeRoom(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, c.stmts.exists, id).Scan(&one)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return storageError(err, "check %q", id)
	}
	var count int
	if err := tx.QueryRowContext(ctx, c.stmts.count).Scan(&count); err != nil {
		return storageError(err, "count %s", c.cfg.table)
	}
	if count < c.cfg.limit {
		return nil
	}
	var victim string
	if err := tx.QueryRowContext(ctx, c.stmts.oldest).Scan(&victim); err != nil {
		return storageError(err, "select eviction victim")
	}
	if _, err := tx.ExecContext(ctx, c.stmts.remove, victim); err != nil {
		return storageError(err, "evict %q", victim)
	}
	c.cfg.log.Debug("evicted %s to make room for %s", victim, id)
	return nil
}

func (c *sqlCache[T]) Has(ctx context.Context, id string) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	if err := c.sweep(qctx, c.db, c.cfg.clock.Now()); err != nil {
		return false, err
	}
	var one int
	err := c.db.QueryRowContext(qctx, c.stmts.exists, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageError(err, "lookup %q", id)
	}
	return true, nil
}

func (c *sqlCache[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	if c.closed.Load() {
		return zero, false, ErrClosed
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	now := c.cfg.clock.Now()
	if err := c.sweep(qctx, c.db, now); err != nil {
		return zero, false, err
	}
	var tag, payload string
	err := c.db.QueryRowContext(qctx, c.stmts.selectOne, id).Scan(&tag, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, storageError(err, "get %q", id)
	}
	val, err := c.codec.Deserialize(tag, payload)
	if err != nil {
		c.cfg.log.Warn("entry %s with type %s could not be decoded: %s", id, tag, err)
		return zero, false, deserializeError(err, id)
	}
	if c.cfg.limited() {
		if _, err := c.db.ExecContext(qctx, c.stmts.touch, now.UnixNano(), id); err != nil {
			return zero, false, storageError(err, "touch %q", id)
		}
	}
	return val, true, nil
}

func (c *sqlCache[T]) Remove(ctx context.Context, id string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	if _, err := c.db.ExecContext(qctx, c.stmts.remove, id); err != nil {
		return storageError(err, "remove %q", id)
	}
	return nil
}

// Enumerate runs a single SELECT over the table and decodes rows as the
// iterator advances. The cursor uses ctx directly rather than the query
// timeout so that slow consumers are not cut off. With a limit configured the
// recency of every yielded row is written when the iterator is closed.
func (c *sqlCache[T]) Enumerate(ctx context.Context) (Iterator[T], error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	qctx, cancel := c.queryCtx(ctx)
	err := c.sweep(qctx, c.db, c.cfg.clock.Now())
	cancel()
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, c.stmts.selectAll)
	if err != nil {
		return nil, storageError(err, "enumerate %s", c.cfg.table)
	}
	it := &rowsIterator[T]{cache: c, ctx: ctx, rows: rows}
	if c.cfg.limited() {
		it.touched = make(map[string]time.Time)
	}
	return it, nil
}

func (c *sqlCache[T]) EvictExpiredItems(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	return c.sweep(qctx, c.db, c.cfg.clock.Now())
}

func (c *sqlCache[T]) Close() error {
	var dbErr error
	c.once.Do(func() {
		c.closed.Store(true)
		if c.owned {
			dbErr = c.db.Close()
		}
	})
	return dbErr
}

// flushTouched writes recency updates collected by an iterator. Rows stored
// or read again since they were yielded keep their newer last_access.
func (c *sqlCache[T]) flushTouched(ctx context.Context, touched map[string]time.Time) error {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	tx, err := c.db.BeginTx(qctx, nil)
	if err != nil {
		return storageError(err, "begin touch")
	}
	defer tx.Rollback()
	for id, at := range touched {
		if _, err := tx.ExecContext(qctx, c.stmts.touchNewer, at.UnixNano(), id, at.UnixNano()); err != nil {
			return storageError(err, "touch %q", id)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageError(err, "commit touch")
	}
	return nil
}

type rawRow struct {
	id, tag, payload string
}

type rowsIterator[T Cacheable] struct {
	cache   *sqlCache[T]
	ctx     context.Context
	rows    *sql.Rows
	pending *rawRow
	err     error
	done    bool
	closed  bool
	touched map[string]time.Time
}

func (it *rowsIterator[T]) HasNext() bool {
	if it.closed {
		return false
	}
	if it.pending != nil || it.err != nil {
		return true
	}
	if it.done {
		return false
	}
	if !it.rows.Next() {
		it.done = true
		if err := it.rows.Err(); err != nil {
			it.err = storageError(err, "enumerate %s", it.cache.cfg.table)
			return true
		}
		return false
	}
	var row rawRow
	if err := it.rows.Scan(&row.id, &row.tag, &row.payload); err != nil {
		it.err = storageError(err, "scan %s", it.cache.cfg.table)
		return true
	}
	it.pending = &row
	return true
}

func (it *rowsIterator[T]) Next() (T, error) {
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
	row := it.pending
	it.pending = nil
	val, err := it.cache.codec.Deserialize(row.tag, row.payload)
	if err != nil {
		it.cache.cfg.log.Warn("entry %s with type %s could not be decoded: %s", row.id, row.tag, err)
		return zero, deserializeError(err, row.id)
	}
	if it.touched != nil {
		it.touched[row.id] = it.cache.cfg.clock.Now()
	}
	return val, nil
}

func (it *rowsIterator[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.pending = nil
	if err := it.rows.Close(); err != nil {
		return storageError(err, "close cursor")
	}
	if len(it.touched) > 0 && !it.cache.closed.Load() {
		return it.cache.flushTouched(context.WithoutCancel(it.ctx), it.touched)
	}
	return nil
}
