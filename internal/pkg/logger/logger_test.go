package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestNewSplitsErrorAndCombinedFiles(t *testing.T) {
	dir := t.TempDir()
	log, err := New(Options{Level: "info", Dir: dir})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("search served")
	log.Error("enqueue failed")
	require.NoError(t, log.Sync())

	combined := readLines(t, filepath.Join(dir, CombinedFile))
	require.Len(t, combined, 2)
	assert.Contains(t, combined[0], `"msg":"search served"`)
	assert.Contains(t, combined[1], `"msg":"enqueue failed"`)

	errors := readLines(t, filepath.Join(dir, ErrorFile))
	require.Len(t, errors, 1)
	assert.Contains(t, errors[0], `"level":"error"`)
}

func TestNewRespectsErrorLevel(t *testing.T) {
	dir := t.TempDir()
	log, err := New(Options{Level: "error", Dir: dir})
	require.NoError(t, err)

	log.Warn("ignored")
	log.Error("kept")

	assert.Len(t, readLines(t, filepath.Join(dir, CombinedFile)), 1)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewWithoutOutputsIsNop(t *testing.T) {
	log, err := New(Options{Level: "info"})
	require.NoError(t, err)
	assert.NotNil(t, log)
}
