package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunMissingConfigFile(t *testing.T) {
	err := run(filepath.Join(t.TempDir(), "missing.json"), time.Second, 1, 4)
	assert.Error(t, err)
}

func TestRunInvalidJSON(t *testing.T) {
	path := writeConfig(t, "{not json")
	err := run(path, time.Second, 1, 4)
	assert.Error(t, err)
}

func TestRunZeroSequenceProvider(t *testing.T) {
	path := writeConfig(t, `{"kind":"dummy","dummy":{"seq_len":4,"cap":0}}`)
	err := run(path, 10*time.Millisecond, 1, 4)
	assert.Error(t, err)
}

func TestRunDummyProvider(t *testing.T) {
	path := writeConfig(t, `{"kind":"dummy","dummy":{"seq_len":4,"cap":32}}`)
	err := run(path, 30*time.Millisecond, 2, 4)
	assert.NoError(t, err)
}
