package main

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/agentuity/go-cacheable/cache"
	"github.com/agentuity/go-cacheable/env"
	"github.com/agentuity/go-cacheable/logger"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

const defaultDB = "cachectl.db"

// Config is the YAML configuration file layout. Flags and CACHECTL_*
// environment variables take precedence over it.
type Config struct {
	DB          string `yaml:"db"`
	Table       string `yaml:"table"`
	ExpireAfter string `yaml:"expire_after"`
	Limit       int    `yaml:"limit"`
}

// loadConfig reads path. An empty path yields the zero Config.
func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// parseExpireAfter accepts Go durations plus day and week units. Empty,
// "never" and "none" disable expiry.
func parseExpireAfter(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "never", "none":
		return cache.NoExpiry, nil
	}
	d, err := str2duration.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid expire-after %q", s)
	}
	if d <= 0 {
		return 0, errors.Newf("expire-after must be positive, got %q", s)
	}
	return d, nil
}

// settings is the resolved configuration for one invocation.
type settings struct {
	db          string
	table       string
	expireAfter time.Duration
	limit       int
}

func resolveSettings(cmd *cobra.Command) (settings, error) {
	var s settings
	cfg, err := loadConfig(env.FlagOrEnv(cmd, "config", "CACHECTL_CONFIG", ""))
	if err != nil {
		return s, err
	}
	s.db = env.FlagOrEnv(cmd, "db", "CACHECTL_DB", cfg.DB)
	if s.db == "" {
		s.db = defaultDB
	}
	s.table = env.FlagOrEnv(cmd, "table", "CACHECTL_TABLE", cfg.Table)
	if s.table == "" {
		s.table = cache.DefaultTable
	}
	if s.expireAfter, err = parseExpireAfter(env.FlagOrEnv(cmd, "expire-after", "CACHECTL_EXPIRE_AFTER", cfg.ExpireAfter)); err != nil {
		return s, err
	}
	if s.limit, err = env.IntFlagOrEnv(cmd, "limit", "CACHECTL_LIMIT", cfg.Limit); err != nil {
		return s, errors.Wrap(err, "invalid limit")
	}
	if s.limit <= 0 {
		s.limit = cache.NoLimit
	}
	return s, nil
}

func (s settings) options(log logger.Logger) []cache.Option {
	return []cache.Option{
		cache.WithTable(s.table),
		cache.WithExpireAfter(s.expireAfter),
		cache.WithLimit(s.limit),
		cache.WithLogger(log),
	}
}
