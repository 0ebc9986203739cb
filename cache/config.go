package cache

import (
	"regexp"
	"time"

	"github.com/agentuity/go-cacheable/logger"
	"github.com/benbjohnson/clock"
)

const (
	// NoExpiry disables time based expiry. It is the default.
	NoExpiry time.Duration = -1

	// NoLimit disables size bound eviction. It is the default.
	NoLimit = -1
)

// DefaultQueryTimeout is the per-operation timeout for cache backends that
// perform I/O (SQL, Redis). Prevents indefinite hangs on slow or
// unresponsive storage.
const DefaultQueryTimeout = 5 * time.Second

// DefaultTable is the table used by the SQL backend unless WithTable is given.
const DefaultTable = "cache"

// BindVar selects the placeholder style used in SQL statements.
type BindVar int

const (
	// BindQuestion uses ? placeholders (SQLite, MySQL).
	BindQuestion BindVar = iota
	// BindDollar uses $1, $2, ... placeholders (PostgreSQL).
	BindDollar
)

// config holds the resolved configuration for a cache implementation.
type config struct {
	expireAfter  time.Duration
	limit        int
	queryTimeout time.Duration
	table        string
	bindVar      BindVar
	prefix       string
	log          logger.Logger
	clock        clock.Clock
}

// Option configures a Cache implementation.
type Option func(*config)

func defaultConfig() config {
	return config{
		expireAfter:  NoExpiry,
		limit:        NoLimit,
		queryTimeout: DefaultQueryTimeout,
		table:        DefaultTable,
		bindVar:      BindQuestion,
		prefix:       "cache",
		clock:        clock.New(),
	}
}

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func applyOptions(backend string, opts []Option) (config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.expireAfter <= 0 && cfg.expireAfter != NoExpiry {
		return cfg, configError("expire after must be positive or NoExpiry, got %s", cfg.expireAfter)
	}
	if cfg.limit <= 0 && cfg.limit != NoLimit {
		return cfg, configError("limit must be positive or NoLimit, got %d", cfg.limit)
	}
	if cfg.queryTimeout < 0 {
		return cfg, configError("query timeout must not be negative, got %s", cfg.queryTimeout)
	}
	if !identifierRegex.MatchString(cfg.table) {
		return cfg, configError("invalid table name %q", cfg.table)
	}
	if cfg.clock == nil {
		return cfg, configError("clock must not be nil")
	}
	if cfg.log == nil {
		cfg.log = logger.Discard()
	}
	cfg.log = cfg.log.WithPrefix("[cache]").With(map[string]interface{}{"backend": backend})
	return cfg, nil
}

func (c config) expires() bool {
	return c.expireAfter != NoExpiry
}

func (c config) limited() bool {
	return c.limit != NoLimit
}

// tracksAccess reports whether entries need a last access time at all.
func (c config) tracksAccess() bool {
	return c.expires() || c.limited()
}

// cutoff returns the instant at or before which an entry counts as expired.
func (c config) cutoff(now time.Time) time.Time {
	return now.Add(-c.expireAfter)
}

// WithExpireAfter sets how long an entry may go without access before it
// expires. Pass NoExpiry to disable.
func WithExpireAfter(d time.Duration) Option {
	return func(c *config) { c.expireAfter = d }
}

// WithLimit sets the maximum number of entries. Pass NoLimit to disable.
func WithLimit(n int) Option {
	return func(c *config) { c.limit = n }
}

// WithLogger sets the logger used for eviction and storage diagnostics.
func WithLogger(log logger.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithClock replaces the wall clock, mostly useful with clock.NewMock in tests.
func WithClock(clk clock.Clock) Option {
	return func(c *config) { c.clock = clk }
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed caches
// (SQL, Redis). Zero disables it. Defaults to DefaultQueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithTable sets the table used by the SQL backend.
func WithTable(name string) Option {
	return func(c *config) { c.table = name }
}

// WithBindVar sets the SQL placeholder style.
func WithBindVar(b BindVar) Option {
	return func(c *config) { c.bindVar = b }
}

// WithPrefix sets the key prefix for namespacing cache keys.
// Applies to the Redis backend. Defaults to "cache".
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}
