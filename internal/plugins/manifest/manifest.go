// Package manifest discovers user-installed plugins. Each plugin lives
// in its own directory under the plugins root and declares itself with
// a plugin.json manifest; the declared command handles polling through
// the external command adapter.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
	"github.com/taskdeck/ingestd/internal/logger"
	"github.com/taskdeck/ingestd/internal/plugins/command"
)

// FileName is the manifest each plugin directory must contain.
const FileName = "plugin.json"

// Manifest is the on-disk plugin declaration: adapter metadata plus the
// command that implements it.
type Manifest struct {
	domain.PluginMetadata

	// Command is the shell command backing the adapter. Relative paths
	// resolve against the plugin's own directory.
	Command string `json:"command"`
}

// DefaultDir returns the per-user plugins root.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".ingestd", "plugins"), nil
}

// Discover loads every valid plugin under dir. A missing root is not an
// error; a broken manifest is logged and skipped so one bad plugin
// cannot keep the rest from loading.
func Discover(dir string) []driven.Plugin {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("plugins: read %s: %v", dir, err)
		}
		return nil
	}

	var plugins []driven.Plugin
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := load(filepath.Join(dir, e.Name()))
		if err != nil {
			logger.Warn("plugins: skip %s: %v", e.Name(), err)
			continue
		}
		logger.Debug("plugins: discovered %s v%s from %s", p.Metadata.Type, p.Metadata.Version, e.Name())
		plugins = append(plugins, p)
	}
	return plugins
}

func load(dir string) (driven.Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return driven.Plugin{}, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return driven.Plugin{}, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return driven.Plugin{}, err
	}
	if m.Command == "" {
		return driven.Plugin{}, fmt.Errorf("command: %w", domain.ErrInvalidInput)
	}

	cmd := m.Command
	if !filepath.IsAbs(cmd) {
		if _, err := os.Stat(filepath.Join(dir, firstWord(cmd))); err == nil {
			cmd = filepath.Join(dir, cmd)
		}
	}

	return driven.Plugin{
		Metadata: m.PluginMetadata,
		New:      func() driven.Adapter { return &command.Adapter{Command: cmd} },
	}, nil
}

// firstWord returns the executable part of a shell command line.
func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' {
			return s[:i]
		}
	}
	return s
}
