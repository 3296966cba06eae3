package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir switches to dir for the duration of the test, restoring the
// original working directory on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	profile := Default()
	profile.BlockSize = 8192
	profile.MatrixRows = 6

	dir := t.TempDir()
	path := filepath.Join(dir, "nvm-config.yaml")
	require.NoError(t, Save(path, profile))

	chdir(t, dir)
	loaded, err := Load()
	require.NoError(t, err)
	assert.EqualValues(t, 8192, loaded.BlockSize)
	assert.EqualValues(t, 6, loaded.MatrixRows)
	assert.EqualValues(t, profile.LayerCount, loaded.LayerCount)
}

func TestLoadFallsBackToDefaultsWithoutConfigFile(t *testing.T) {
	chdir(t, t.TempDir())
	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), loaded)
}
