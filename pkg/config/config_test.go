package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsBadActiveThreads(t *testing.T) {
	o := Default()
	o.DefaultActiveThreads = o.MaxThreads + 1
	assert.Error(t, o.Validate())
}

func TestValidateRejectsUnknownBarrier(t *testing.T) {
	o := Default()
	o.BarrierKind = "nonsense"
	assert.Error(t, o.Validate())
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loom.json")
	base := Default()
	base.ChunkSize = 16
	require.NoError(t, base.SaveToFile(path))

	t.Setenv("LOOM_CHUNK_SIZE", "32")
	opts, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 32, opts.ChunkSize, "env var must override the file value")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPrintPerThreadStatsEnvToggle(t *testing.T) {
	t.Setenv("PRINT_PER_THREAD_STATS", "1")
	opts, err := Load("")
	require.NoError(t, err)
	assert.True(t, opts.PrintPerThreadStats)
}

func TestSaveToFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loom.json")
	o := Default()
	require.NoError(t, o.SaveToFile(path))
	_, err := os.Stat(path)
	require.NoError(t, err)
}
