package cache

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteMemory = ":memory:"

// OpenSQLite returns a Cache backed by a SQLite database using
// modernc.org/sqlite (pure Go, no CGO) that owns its connection.
// If path is empty or ":memory:", an in-memory database is used; it lives on
// a single connection, so iterators must be closed before the cache is used
// again. File databases use WAL mode, a busy timeout and immediate
// transactions so concurrent writers queue instead of failing.
func OpenSQLite[T Cacheable](ctx context.Context, path string, codec Codec[T], opts ...Option) (Cache[T], error) {
	dsn := path
	if path == "" || path == sqliteMemory {
		dsn = sqliteMemory
	} else {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		dsn = path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageError(err, "open sqlite %s", path)
	}
	if dsn == sqliteMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storageError(err, "open sqlite %s", path)
	}
	return newSQL(ctx, db, true, codec, opts)
}
