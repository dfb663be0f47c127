package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Console(t *testing.T) {
	l, err := New(DefaultOptions())
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNew_RejectsBadInput(t *testing.T) {
	opts := DefaultOptions()
	opts.Level = "loud"
	_, err := New(opts)
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.Format = "xml"
	_, err = New(opts)
	assert.Error(t, err)
}

func TestNew_WritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.Dir = dir
	opts.Format = "json"

	l, err := New(opts)
	require.NoError(t, err)
	l.Info("cycle closed")
	_ = l.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "bot.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "cycle closed")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
