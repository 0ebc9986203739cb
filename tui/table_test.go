package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablePlainOutput(t *testing.T) {
	var buf bytes.Buffer
	err := Table(&buf, []string{"ID", "TEXT"}, [][]string{
		{"a", "first"},
		{"bb", "second"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[0], "TEXT")
	assert.True(t, strings.HasPrefix(lines[1], "a "))
	assert.Contains(t, lines[2], "second")
	assert.NotContains(t, buf.String(), "│")
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestTableEmptyRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, []string{"ID", "TEXT"}, nil))
	assert.Equal(t, 1, strings.Count(strings.TrimRight(buf.String(), "\n"), "\n")+1)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}
