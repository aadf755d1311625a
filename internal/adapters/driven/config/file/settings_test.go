package file

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsSetAndReload(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSettingsStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Set("tracker.url", "http://localhost:9090"))
	require.NoError(t, s.Set("engine.staleAfterSec", 120))

	// A fresh store reads the persisted file.
	s2, err := NewSettingsStore(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9090", s2.GetString("tracker.url"))
	assert.Equal(t, 120, s2.GetInt("engine.staleAfterSec"))
}

func TestSettingsDottedTableLookup(t *testing.T) {
	dir := t.TempDir()
	content := "[secrets]\ngithub_token = \"abc123\"\n\n[downloads]\ndir = \"/tmp/dl\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))

	s, err := NewSettingsStore(dir)
	require.NoError(t, err)

	assert.Equal(t, "abc123", s.GetString("secrets.github_token"))
	assert.Equal(t, "/tmp/dl", s.GetString("downloads.dir"))

	_, ok := s.Get("secrets.missing")
	assert.False(t, ok)
}

func TestSettingsZeroValuesForMissingOrWrongType(t *testing.T) {
	s, err := NewSettingsStore(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "", s.GetString("nope"))
	assert.Equal(t, 0, s.GetInt("nope"))
	assert.False(t, s.GetBool("nope"))

	require.NoError(t, s.Set("verbose", true))
	assert.True(t, s.GetBool("verbose"))
	assert.Equal(t, "", s.GetString("verbose"))
}

func TestSettingsFileIsPrivate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	dir := t.TempDir()
	s, err := NewSettingsStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("secrets.api_key", "hunter2"))

	info, err := os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSettingsBadTOMLSurfaces(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("not = valid ="), 0600))

	_, err := NewSettingsStore(dir)
	assert.Error(t, err)
}
