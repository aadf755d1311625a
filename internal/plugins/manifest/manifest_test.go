package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/ingestd/internal/core/services"
	"github.com/taskdeck/ingestd/internal/plugins/command"
	"github.com/taskdeck/ingestd/internal/plugins/rss"
)

const validManifest = `{
  "type": "jira",
  "name": "Jira Issues",
  "description": "Polls a Jira project for new issues",
  "version": "0.3.1",
  "configFields": [
    {"key": "projectKey", "label": "Project Key", "type": "string", "required": true}
  ],
  "command": "jira-poll --json"
}`

func installPlugin(t *testing.T, root, dirName, manifest string) string {
	t.Helper()
	dir := filepath.Join(root, dirName)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(manifest), 0600))
	return dir
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	installPlugin(t, root, "jira", validManifest)

	plugins := Discover(root)
	require.Len(t, plugins, 1)

	p := plugins[0]
	assert.Equal(t, "jira", p.Metadata.Type)
	assert.Equal(t, "0.3.1", p.Metadata.Version)
	assert.Equal(t, []string{"projectKey"}, p.Metadata.RequiredConfigKeys())

	adapter, ok := p.New().(*command.Adapter)
	require.True(t, ok)
	assert.Equal(t, "jira-poll --json", adapter.Command)
}

func TestDiscoverMissingRoot(t *testing.T) {
	assert.Nil(t, Discover(filepath.Join(t.TempDir(), "does-not-exist")))
}

func TestDiscoverSkipsBrokenManifests(t *testing.T) {
	root := t.TempDir()
	installPlugin(t, root, "good", validManifest)
	installPlugin(t, root, "unparseable", `{oops`)
	installPlugin(t, root, "invalid", `{"type": "Bad Type", "command": "x"}`)
	installPlugin(t, root, "commandless", `{
  "type": "mute",
  "name": "Mute",
  "description": "Declares no command",
  "version": "1.0.0"
}`)
	// Stray files in the root are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("hi"), 0600))

	plugins := Discover(root)
	require.Len(t, plugins, 1)
	assert.Equal(t, "jira", plugins[0].Metadata.Type)
}

func TestDiscoverResolvesLocalCommand(t *testing.T) {
	root := t.TempDir()
	dir := installPlugin(t, root, "local", `{
  "type": "local",
  "name": "Local Script",
  "description": "Runs a script shipped with the plugin",
  "version": "1.0.0",
  "command": "run.sh --poll"
}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\n"), 0755))

	plugins := Discover(root)
	require.Len(t, plugins, 1)

	adapter := plugins[0].New().(*command.Adapter)
	assert.Equal(t, filepath.Join(dir, "run.sh --poll"), adapter.Command)
}

func TestDiscoveredPluginShadowsBuiltin(t *testing.T) {
	root := t.TempDir()
	installPlugin(t, root, "rss-custom", `{
  "type": "rss",
  "name": "Custom RSS",
  "description": "Replaces the built-in feed adapter",
  "version": "2.0.0",
  "command": "custom-rss"
}`)

	reg := services.NewPluginRegistry()
	require.NoError(t, reg.Register(rss.Plugin()))
	reg.RegisterAll(Discover(root))

	meta, err := reg.Lookup("rss")
	require.NoError(t, err)
	assert.Equal(t, "Custom RSS", meta.Name)
	assert.Len(t, reg.List(), 1)
}
