package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentuity/go-cacheable/cache"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpireAfter(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "", want: cache.NoExpiry},
		{in: "never", want: cache.NoExpiry},
		{in: "None", want: cache.NoExpiry},
		{in: "90s", want: 90 * time.Second},
		{in: "1d12h", want: 36 * time.Hour},
		{in: "2w", want: 14 * 24 * time.Hour},
		{in: "0s", wantErr: true},
		{in: "-5m", wantErr: true},
		{in: "later", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseExpireAfter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := loadConfig("")
	assert.NoError(t, err)
	assert.Equal(t, Config{}, cfg)

	path := filepath.Join(dir, "ok.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db: notes.db\ntable: notes\nexpire_after: 7d\nlimit: 100\n"), 0644))
	cfg, err = loadConfig(path)
	assert.NoError(t, err)
	assert.Equal(t, Config{DB: "notes.db", Table: "notes", ExpireAfter: "7d", Limit: 100}, cfg)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	cfg, err = loadConfig(empty)
	assert.NoError(t, err)
	assert.Equal(t, Config{}, cfg)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("database: x\n"), 0644))
	_, err = loadConfig(unknown)
	assert.ErrorContains(t, err, "parse config")
}

func TestResolveSettingsPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db: config.db\ntable: notes\nexpire_after: 1h\nlimit: 5\n"), 0644))

	newCmd := func() *cobra.Command {
		root := newRootCommand()
		cmd, _, err := root.Find([]string{"ls"})
		require.NoError(t, err)
		require.NoError(t, root.PersistentFlags().Set("config", path))
		cmd.InheritedFlags()
		return cmd
	}

	cmd := newCmd()
	s, err := resolveSettings(cmd)
	require.NoError(t, err)
	assert.Equal(t, settings{db: "config.db", table: "notes", expireAfter: time.Hour, limit: 5}, s)

	t.Setenv("CACHECTL_DB", "env.db")
	t.Setenv("CACHECTL_LIMIT", "0")
	cmd = newCmd()
	require.NoError(t, cmd.Flags().Set("expire-after", "2d"))
	s, err = resolveSettings(cmd)
	require.NoError(t, err)
	assert.Equal(t, settings{db: "env.db", table: "notes", expireAfter: 48 * time.Hour, limit: cache.NoLimit}, s)
}

func TestResolveSettingsDefaults(t *testing.T) {
	root := newRootCommand()
	cmd, _, err := root.Find([]string{"ls"})
	require.NoError(t, err)
	cmd.InheritedFlags()

	s, err := resolveSettings(cmd)
	require.NoError(t, err)
	assert.Equal(t, settings{db: defaultDB, table: cache.DefaultTable, expireAfter: cache.NoExpiry, limit: cache.NoLimit}, s)
}
